package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type promptRequest struct {
	Name               string `json:"name" binding:"required"`
	SystemPrompt       string `json:"system_prompt"`
	UserPromptTemplate string `json:"user_prompt_template" binding:"required"`
}

// CreatePrompt handles POST /api/prompts.
func (s *Server) CreatePrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prompt, err := s.deps.Prompts.CreatePrompt(c.Request.Context(), mustUserID(c),
		req.Name, req.SystemPrompt, req.UserPromptTemplate)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prompt)
}

// ListPrompts handles GET /api/prompts. System templates are included.
func (s *Server) ListPrompts(c *gin.Context) {
	prompts, err := s.deps.Prompts.ListPrompts(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompts)
}

// GetPrompt handles GET /api/prompts/:id.
func (s *Server) GetPrompt(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	prompt, err := s.deps.Prompts.GetPrompt(c.Request.Context(), mustUserID(c), id)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// UpdatePrompt handles PUT /api/prompts/:id.
func (s *Server) UpdatePrompt(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prompt, err := s.deps.Prompts.UpdatePrompt(c.Request.Context(), mustUserID(c), id,
		req.Name, req.SystemPrompt, req.UserPromptTemplate)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// DeletePrompt handles DELETE /api/prompts/:id.
func (s *Server) DeletePrompt(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Prompts.DeletePrompt(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
