package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Rate-limit rule names expected in the limiter's rule set.
const (
	ruleGeneral = "api_general"
	ruleAuth    = "api_auth"
)

// userIDKey is the gin context key holding the authenticated user id.
const userIDKey = "user_id"

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// requireAuth validates the Bearer token and stores the user id in the
// context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := s.deps.Users.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// rateLimit admits requests under the named rule, keyed by the authenticated
// user when available and the client IP otherwise.
func (s *Server) rateLimit(rule string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Limiter == nil {
			c.Next()
			return
		}
		identifier := c.ClientIP()
		if id, ok := currentUserID(c); ok {
			identifier = id.String()
		}
		if !s.deps.Limiter.Allow(rule, identifier) {
			retryAfter := s.deps.Limiter.RetryAfter(rule, identifier)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// currentUserID reads the authenticated user id set by requireAuth.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// mustUserID is for handlers behind requireAuth, where the id is guaranteed.
func mustUserID(c *gin.Context) uuid.UUID {
	id, _ := currentUserID(c)
	return id
}

// pathUUID parses a uuid path parameter, replying 400 on garbage.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
