package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createProviderRequest struct {
	ProviderName string   `json:"provider_name" binding:"required"`
	APIKey       string   `json:"api_key" binding:"required"`
	ModelName    string   `json:"model_name"`
	MaxTokens    *int     `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
}

// CreateProvider handles POST /api/providers.
func (s *Server) CreateProvider(c *gin.Context) {
	var req createProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider, err := s.deps.Providers.CreateProvider(c.Request.Context(), mustUserID(c),
		req.ProviderName, req.APIKey, req.ModelName, req.MaxTokens, req.Temperature)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, provider)
}

// ListProviders handles GET /api/providers.
func (s *Server) ListProviders(c *gin.Context) {
	providers, err := s.deps.Providers.ListProviders(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, providers)
}

// GetProvider handles GET /api/providers/:id.
func (s *Server) GetProvider(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	provider, err := s.deps.Providers.GetProvider(c.Request.Context(), mustUserID(c), id)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetProviderActive handles PUT /api/providers/:id/active.
func (s *Server) SetProviderActive(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider, err := s.deps.Providers.SetActive(c.Request.Context(), mustUserID(c), id, *req.Active)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

// DeleteProvider handles DELETE /api/providers/:id.
func (s *Server) DeleteProvider(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Providers.DeleteProvider(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
