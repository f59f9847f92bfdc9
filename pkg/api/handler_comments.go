package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListComments handles GET /api/comments?limit=&offset=.
func (s *Server) ListComments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	comments, err := s.deps.Comments.ListComments(c.Request.Context(), mustUserID(c), limit, offset)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// GetComment handles GET /api/comments/:id.
func (s *Server) GetComment(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	comment, err := s.deps.Comments.GetComment(c.Request.Context(), mustUserID(c), id)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// DeleteComment handles DELETE /api/comments/:id (soft delete).
func (s *Server) DeleteComment(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Comments.DeleteComment(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
