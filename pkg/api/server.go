// Package api exposes the HTTP surface: JWT-authenticated REST endpoints for
// users, platform logins, LLM providers, prompt templates, monitoring
// processes, comments, and student backups, plus health reporting.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/database"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/services"
	"github.com/yourmoment/yourmoment/pkg/version"
)

const shutdownTimeout = 10 * time.Second

// Users is the authentication surface the server needs.
type Users interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (string, *models.User, error)
	ParseToken(tokenString string) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Logins manages platform credentials.
type Logins interface {
	CreateLogin(ctx context.Context, userID uuid.UUID, name, username, password string, isAdmin bool) (*models.PlatformLogin, error)
	GetLogin(ctx context.Context, userID, id uuid.UUID) (*models.PlatformLogin, error)
	ListLogins(ctx context.Context, userID uuid.UUID) ([]models.PlatformLogin, error)
	UpdateCredentials(ctx context.Context, userID, id uuid.UUID, username, password string) (*models.PlatformLogin, error)
	DeleteLogin(ctx context.Context, userID, id uuid.UUID) error
}

// Providers manages LLM provider configurations.
type Providers interface {
	CreateProvider(ctx context.Context, userID uuid.UUID, providerName, apiKey, modelName string, maxTokens *int, temperature *float64) (*models.LLMProviderConfig, error)
	GetProvider(ctx context.Context, userID, id uuid.UUID) (*models.LLMProviderConfig, error)
	ListProviders(ctx context.Context, userID uuid.UUID) ([]models.LLMProviderConfig, error)
	SetActive(ctx context.Context, userID, id uuid.UUID, active bool) (*models.LLMProviderConfig, error)
	DeleteProvider(ctx context.Context, userID, id uuid.UUID) error
}

// Prompts manages prompt templates.
type Prompts interface {
	CreatePrompt(ctx context.Context, userID uuid.UUID, name, systemPrompt, userPromptTemplate string) (*models.PromptTemplate, error)
	GetPrompt(ctx context.Context, userID, id uuid.UUID) (*models.PromptTemplate, error)
	ListPrompts(ctx context.Context, userID uuid.UUID) ([]models.PromptTemplate, error)
	UpdatePrompt(ctx context.Context, userID, id uuid.UUID, name, systemPrompt, userPromptTemplate string) (*models.PromptTemplate, error)
	DeletePrompt(ctx context.Context, userID, id uuid.UUID) error
}

// Processes manages monitoring process definitions and lifecycle.
type Processes interface {
	CreateProcess(ctx context.Context, req services.CreateProcessRequest) (*models.MonitoringProcess, error)
	GetProcess(ctx context.Context, userID, id uuid.UUID) (*models.MonitoringProcess, error)
	ListProcesses(ctx context.Context, userID uuid.UUID) ([]models.MonitoringProcess, error)
	StartProcess(ctx context.Context, userID, id uuid.UUID) error
	StopProcess(ctx context.Context, userID, id uuid.UUID) error
	DeleteProcess(ctx context.Context, userID, id uuid.UUID) error
}

// Comments exposes pipeline comments read-only plus soft-delete.
type Comments interface {
	ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AIComment, error)
	GetComment(ctx context.Context, userID, id uuid.UUID) (*models.AIComment, error)
	DeleteComment(ctx context.Context, userID, id uuid.UUID) error
}

// Backups exposes the student backup feature.
type Backups interface {
	TrackStudent(ctx context.Context, req services.TrackStudentRequest) (*models.TrackedStudent, error)
	ListTrackedStudents(ctx context.Context, userID uuid.UUID) ([]models.TrackedStudent, error)
	UntrackStudent(ctx context.Context, userID, id uuid.UUID) error
	ListVersions(ctx context.Context, userID, studentID uuid.UUID, articleID int) ([]models.ArticleVersion, error)
}

// DBHealth reports database connectivity.
type DBHealth interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// PoolHealth reports worker pool state. Nil when this pod runs no workers.
type PoolHealth interface {
	Health() *queue.PoolHealth
}

// RateLimiter admits inbound requests per rule and identifier.
type RateLimiter interface {
	Allow(ruleName, identifier string) bool
	RetryAfter(ruleName, identifier string) time.Duration
}

// Deps bundles everything the server serves.
type Deps struct {
	Users     Users
	Logins    Logins
	Providers Providers
	Prompts   Prompts
	Processes Processes
	Comments  Comments
	Backups   Backups

	DB      DBHealth
	Pool    PoolHealth
	Limiter RateLimiter
}

// Server is the HTTP API server.
type Server struct {
	cfg  config.AppConfig
	deps Deps
	log  *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg config.AppConfig, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  slog.With("component", "api"),
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), securityHeaders())

	r.GET("/health", s.Health)
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.Full()})
	})

	auth := r.Group("/api/auth", s.rateLimit(ruleAuth))
	{
		auth.POST("/register", s.RegisterUser)
		auth.POST("/login", s.Login)
	}

	apiGroup := r.Group("/api", s.requireAuth(), s.rateLimit(ruleGeneral))
	{
		apiGroup.GET("/me", s.Me)

		apiGroup.POST("/logins", s.CreateLogin)
		apiGroup.GET("/logins", s.ListLogins)
		apiGroup.GET("/logins/:id", s.GetLogin)
		apiGroup.PUT("/logins/:id/credentials", s.UpdateLoginCredentials)
		apiGroup.DELETE("/logins/:id", s.DeleteLogin)

		apiGroup.POST("/providers", s.CreateProvider)
		apiGroup.GET("/providers", s.ListProviders)
		apiGroup.GET("/providers/:id", s.GetProvider)
		apiGroup.PUT("/providers/:id/active", s.SetProviderActive)
		apiGroup.DELETE("/providers/:id", s.DeleteProvider)

		apiGroup.POST("/prompts", s.CreatePrompt)
		apiGroup.GET("/prompts", s.ListPrompts)
		apiGroup.GET("/prompts/:id", s.GetPrompt)
		apiGroup.PUT("/prompts/:id", s.UpdatePrompt)
		apiGroup.DELETE("/prompts/:id", s.DeletePrompt)

		apiGroup.POST("/processes", s.CreateProcess)
		apiGroup.GET("/processes", s.ListProcesses)
		apiGroup.GET("/processes/:id", s.GetProcess)
		apiGroup.POST("/processes/:id/start", s.StartProcess)
		apiGroup.POST("/processes/:id/stop", s.StopProcess)
		apiGroup.DELETE("/processes/:id", s.DeleteProcess)

		apiGroup.GET("/comments", s.ListComments)
		apiGroup.GET("/comments/:id", s.GetComment)
		apiGroup.DELETE("/comments/:id", s.DeleteComment)

		apiGroup.POST("/backups/students", s.TrackStudent)
		apiGroup.GET("/backups/students", s.ListTrackedStudents)
		apiGroup.DELETE("/backups/students/:id", s.UntrackStudent)
		apiGroup.GET("/backups/students/:id/articles/:articleID/versions", s.ListArticleVersions)
	}

	return r
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return <-errCh
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
