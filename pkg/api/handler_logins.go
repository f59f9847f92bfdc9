package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createLoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateLogin handles POST /api/logins.
func (s *Server) CreateLogin(c *gin.Context) {
	var req createLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	login, err := s.deps.Logins.CreateLogin(c.Request.Context(), mustUserID(c),
		req.Name, req.Username, req.Password, req.IsAdmin)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, login)
}

// ListLogins handles GET /api/logins.
func (s *Server) ListLogins(c *gin.Context) {
	logins, err := s.deps.Logins.ListLogins(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, logins)
}

// GetLogin handles GET /api/logins/:id.
func (s *Server) GetLogin(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	login, err := s.deps.Logins.GetLogin(c.Request.Context(), mustUserID(c), id)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, login)
}

type updateCredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateLoginCredentials handles PUT /api/logins/:id/credentials.
func (s *Server) UpdateLoginCredentials(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req updateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	login, err := s.deps.Logins.UpdateCredentials(c.Request.Context(), mustUserID(c), id,
		req.Username, req.Password)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, login)
}

// DeleteLogin handles DELETE /api/logins/:id.
func (s *Server) DeleteLogin(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Logins.DeleteLogin(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
