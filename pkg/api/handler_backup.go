package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourmoment/yourmoment/pkg/services"
)

// TrackStudent handles POST /api/backups/students.
func (s *Server) TrackStudent(c *gin.Context) {
	var req services.TrackStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID = mustUserID(c)
	ts, err := s.deps.Backups.TrackStudent(c.Request.Context(), req)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ts)
}

// ListTrackedStudents handles GET /api/backups/students.
func (s *Server) ListTrackedStudents(c *gin.Context) {
	students, err := s.deps.Backups.ListTrackedStudents(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// UntrackStudent handles DELETE /api/backups/students/:id.
func (s *Server) UntrackStudent(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Backups.UntrackStudent(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListArticleVersions handles
// GET /api/backups/students/:id/articles/:articleID/versions.
func (s *Server) ListArticleVersions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	articleID, err := strconv.Atoi(c.Param("articleID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid articleID"})
		return
	}
	versions, err := s.deps.Backups.ListVersions(c.Request.Context(), mustUserID(c), id, articleID)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}
