package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourmoment/yourmoment/pkg/services"
)

// CreateProcess handles POST /api/processes.
func (s *Server) CreateProcess(c *gin.Context) {
	var req services.CreateProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID = mustUserID(c)
	proc, err := s.deps.Processes.CreateProcess(c.Request.Context(), req)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proc)
}

// ListProcesses handles GET /api/processes.
func (s *Server) ListProcesses(c *gin.Context) {
	procs, err := s.deps.Processes.ListProcesses(c.Request.Context(), mustUserID(c))
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, procs)
}

// GetProcess handles GET /api/processes/:id.
func (s *Server) GetProcess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	proc, err := s.deps.Processes.GetProcess(c.Request.Context(), mustUserID(c), id)
	if err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, proc)
}

// StartProcess handles POST /api/processes/:id/start.
func (s *Server) StartProcess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Processes.StartProcess(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopProcess handles POST /api/processes/:id/stop.
func (s *Server) StopProcess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Processes.StopProcess(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// DeleteProcess handles DELETE /api/processes/:id.
func (s *Server) DeleteProcess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Processes.DeleteProcess(c.Request.Context(), mustUserID(c), id); err != nil {
		replyServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
