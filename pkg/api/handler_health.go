package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourmoment/yourmoment/pkg/version"
)

// Health handles GET /health. The database decides healthiness; the worker
// pool section is informational and present only on worker pods.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{"version": version.Full()}
	status := http.StatusOK

	dbHealth, err := s.deps.DB.Health(ctx)
	body["database"] = dbHealth
	if err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		body["status"] = "healthy"
	}

	if s.deps.Pool != nil {
		pool := s.deps.Pool.Health()
		body["worker_pool"] = pool
		if status == http.StatusOK && !pool.IsHealthy {
			body["status"] = "degraded"
		}
	}

	c.JSON(status, body)
}
