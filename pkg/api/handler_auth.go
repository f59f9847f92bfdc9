package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterUser handles POST /api/auth/register.
func (s *Server) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.deps.Users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login and returns a bearer token.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, user, err := s.deps.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Me handles GET /api/me.
func (s *Server) Me(c *gin.Context) {
	user, err := s.deps.Users.GetUser(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
