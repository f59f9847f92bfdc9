package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/database"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/queue"
	"github.com/yourmoment/yourmoment/pkg/services"
)

type fakeUsers struct {
	tokens map[string]uuid.UUID
	users  map[uuid.UUID]*models.User

	registerErr error
	authErr     error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		tokens: make(map[string]uuid.UUID),
		users:  make(map[uuid.UUID]*models.User),
	}
}

func (f *fakeUsers) Register(_ context.Context, email, _ string) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	u := &models.User{ID: uuid.New(), Email: email, IsActive: true}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, email, _ string) (string, *models.User, error) {
	if f.authErr != nil {
		return "", nil, f.authErr
	}
	u := &models.User{ID: uuid.New(), Email: email, IsActive: true}
	f.users[u.ID] = u
	token := "token-" + u.ID.String()
	f.tokens[token] = u.ID
	return token, u, nil
}

func (f *fakeUsers) ParseToken(token string) (uuid.UUID, error) {
	id, ok := f.tokens[token]
	if !ok {
		return uuid.Nil, services.ErrInvalidCredentials
	}
	return id, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return u, nil
}

type fakeProcesses struct {
	created []services.CreateProcessRequest
	procs   map[uuid.UUID]*models.MonitoringProcess

	started []uuid.UUID
	stopped []uuid.UUID
	err     error
}

func newFakeProcesses() *fakeProcesses {
	return &fakeProcesses{procs: make(map[uuid.UUID]*models.MonitoringProcess)}
}

func (f *fakeProcesses) CreateProcess(_ context.Context, req services.CreateProcessRequest) (*models.MonitoringProcess, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	proc := &models.MonitoringProcess{ID: uuid.New(), UserID: req.UserID, Name: req.Name,
		Status: models.ProcessStatusCreated}
	f.procs[proc.ID] = proc
	return proc, nil
}

func (f *fakeProcesses) GetProcess(_ context.Context, userID, id uuid.UUID) (*models.MonitoringProcess, error) {
	proc, ok := f.procs[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if proc.UserID != userID {
		return nil, services.ErrForbidden
	}
	return proc, nil
}

func (f *fakeProcesses) ListProcesses(_ context.Context, userID uuid.UUID) ([]models.MonitoringProcess, error) {
	var out []models.MonitoringProcess
	for _, p := range f.procs {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProcesses) StartProcess(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.GetProcess(ctx, userID, id); err != nil {
		return err
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeProcesses) StopProcess(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.GetProcess(ctx, userID, id); err != nil {
		return err
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeProcesses) DeleteProcess(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.GetProcess(ctx, userID, id); err != nil {
		return err
	}
	delete(f.procs, id)
	return nil
}

type fakeComments struct {
	comments map[uuid.UUID]*models.AIComment

	lastLimit  int
	lastOffset int
}

func newFakeComments() *fakeComments {
	return &fakeComments{comments: make(map[uuid.UUID]*models.AIComment)}
}

func (f *fakeComments) ListComments(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.AIComment, error) {
	f.lastLimit, f.lastOffset = limit, offset
	var out []models.AIComment
	for _, c := range f.comments {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeComments) GetComment(_ context.Context, userID, id uuid.UUID) (*models.AIComment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if c.UserID != userID {
		return nil, services.ErrForbidden
	}
	return c, nil
}

func (f *fakeComments) DeleteComment(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.GetComment(ctx, userID, id); err != nil {
		return err
	}
	delete(f.comments, id)
	return nil
}

type fakeDB struct {
	err error
}

func (f *fakeDB) Health(context.Context) (*database.HealthStatus, error) {
	if f.err != nil {
		return &database.HealthStatus{Status: "unhealthy"}, f.err
	}
	return &database.HealthStatus{Status: "healthy"}, nil
}

type fakePool struct {
	healthy bool
}

func (f *fakePool) Health() *queue.PoolHealth {
	return &queue.PoolHealth{IsHealthy: f.healthy, PodID: "test-pod"}
}

type denyingLimiter struct {
	denyRule string
}

func (l *denyingLimiter) Allow(rule, _ string) bool { return rule != l.denyRule }
func (l *denyingLimiter) RetryAfter(_, _ string) time.Duration { return 3 * time.Second }

type apiEnv struct {
	server    *Server
	router    http.Handler
	users     *fakeUsers
	processes *fakeProcesses
	comments  *fakeComments
	db        *fakeDB
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	env := &apiEnv{
		users:     newFakeUsers(),
		processes: newFakeProcesses(),
		comments:  newFakeComments(),
		db:        &fakeDB{},
	}
	env.server = NewServer(config.AppConfig{Host: "127.0.0.1", Port: 0}, Deps{
		Users:     env.users,
		Processes: env.processes,
		Comments:  env.comments,
		DB:        env.db,
	})
	env.router = env.server.Router()
	return env
}

// login mints a user and returns its bearer token.
func (env *apiEnv) login(t *testing.T) (string, uuid.UUID) {
	t.Helper()
	token, user, err := env.users.Authenticate(context.Background(), "lehrerin@example.com", "pw")
	require.NoError(t, err)
	return token, user.ID
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/api/processes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/processes", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "",
		h{"email": "lehrerin@example.com", "password": "langes-passwort"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", "",
		h{"email": "lehrerin@example.com", "password": "langes-passwort"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)

	w = env.do(t, http.MethodGet, "/api/me", resp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "", h{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.login(t)

	// Validation errors carry the offending field.
	env.processes.err = services.NewValidationError("login_ids", "at least one platform login required")
	w := env.do(t, http.MethodPost, "/api/processes", token, h{"name": "Klasse 4a"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "login_ids", body["field"])

	// Unknown ids are 404.
	w = env.do(t, http.MethodGet, "/api/processes/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Foreign rows are 403.
	foreign := &models.MonitoringProcess{ID: uuid.New(), UserID: uuid.New()}
	env.processes.procs[foreign.ID] = foreign
	w = env.do(t, http.MethodGet, "/api/processes/"+foreign.ID.String(), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unexpected errors are opaque 500s.
	env.processes.err = errors.New("pq: connection refused")
	w = env.do(t, http.MethodPost, "/api/processes", token, h{"name": "Klasse 4a"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestCreateProcessUsesTokenIdentity(t *testing.T) {
	env := newAPIEnv(t)
	token, userID := env.login(t)

	w := env.do(t, http.MethodPost, "/api/processes", token, h{
		"name":      "Klasse 4a",
		"login_ids": []string{uuid.NewString()},
		"prompts":   []h{{"prompt_template_id": uuid.NewString(), "weight": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, env.processes.created, 1)
	assert.Equal(t, userID, env.processes.created[0].UserID,
		"the user id comes from the token, never the body")
}

func TestProcessLifecycleEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	token, userID := env.login(t)
	proc := &models.MonitoringProcess{ID: uuid.New(), UserID: userID, Status: models.ProcessStatusCreated}
	env.processes.procs[proc.ID] = proc

	w := env.do(t, http.MethodPost, "/api/processes/"+proc.ID.String()+"/start", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{proc.ID}, env.processes.started)

	w = env.do(t, http.MethodPost, "/api/processes/"+proc.ID.String()+"/stop", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/processes/"+proc.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, env.processes.procs)
}

func TestListCommentsForwardsPagination(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.login(t)

	w := env.do(t, http.MethodGet, "/api/comments?limit=5&offset=10", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, env.comments.lastLimit)
	assert.Equal(t, 10, env.comments.lastOffset)
}

func TestDeleteCommentEnforcesOwnership(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.login(t)
	other := &models.AIComment{ID: uuid.New(), UserID: uuid.New()}
	env.comments.comments[other.ID] = other

	w := env.do(t, http.MethodDelete, "/api/comments/"+other.ID.String(), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, env.comments.comments, other.ID)
}

func TestRateLimitedAuthEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.server.deps.Limiter = &denyingLimiter{denyRule: ruleAuth}
	env.router = env.server.Router()

	w := env.do(t, http.MethodPost, "/api/auth/login", "",
		h{"email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other rules stay open.
	token, _ := env.login(t)
	w = env.do(t, http.MethodGet, "/api/comments", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthStates(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	env.server.deps.Pool = &fakePool{healthy: false}
	env.router = env.server.Router()
	w = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)

	env.db.err = errors.New("connection refused")
	w = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

// h is shorthand for JSON request bodies.
type h = map[string]any
