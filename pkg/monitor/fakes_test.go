package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/platformsession"
	"github.com/yourmoment/yourmoment/pkg/scraper"
	"github.com/yourmoment/yourmoment/pkg/store"
)

type fakeProcessStore struct {
	mu       sync.Mutex
	procs    map[uuid.UUID]*models.MonitoringProcess
	logins   map[uuid.UUID][]models.ProcessLogin
	prompts  map[uuid.UUID][]models.ProcessPrompt
	stageJob map[models.Stage]uuid.UUID
	progress map[models.Stage][2]int
}

func newFakeProcessStore() *fakeProcessStore {
	return &fakeProcessStore{
		procs:    make(map[uuid.UUID]*models.MonitoringProcess),
		logins:   make(map[uuid.UUID][]models.ProcessLogin),
		prompts:  make(map[uuid.UUID][]models.ProcessPrompt),
		stageJob: make(map[models.Stage]uuid.UUID),
		progress: make(map[models.Stage][2]int),
	}
}

func (f *fakeProcessStore) GetByID(_ context.Context, id uuid.UUID) (*models.MonitoringProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.procs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *proc
	return &cp, nil
}

func (f *fakeProcessStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.ProcessStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.procs[id]
	if !ok || proc.Status != from {
		return store.ErrNotFound
	}
	proc.Status = to
	if to == models.ProcessStatusRunning && proc.StartedAt == nil {
		now := time.Now()
		proc.StartedAt = &now
	}
	return nil
}

func (f *fakeProcessStore) SetStageJob(_ context.Context, _ uuid.UUID, stage models.Stage, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageJob[stage] = jobID
	return nil
}

func (f *fakeProcessStore) AddStageProgress(_ context.Context, _ uuid.UUID, stage models.Stage, processed, errors int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.progress[stage]
	f.progress[stage] = [2]int{prev[0] + processed, prev[1] + errors}
	return nil
}

func (f *fakeProcessStore) Logins(_ context.Context, processID uuid.UUID) ([]models.ProcessLogin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins[processID], nil
}

func (f *fakeProcessStore) Prompts(_ context.Context, processID uuid.UUID) ([]models.ProcessPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[processID], nil
}

func (f *fakeProcessStore) status(id uuid.UUID) models.ProcessStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[id].Status
}

type fakeCommentStore struct {
	mu       sync.Mutex
	order    []uuid.UUID
	comments map[uuid.UUID]*models.AIComment
	claimed  map[uuid.UUID]bool
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{
		comments: make(map[uuid.UUID]*models.AIComment),
		claimed:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeCommentStore) Create(_ context.Context, c *models.AIComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.comments {
		if existing.IsActive &&
			existing.MyMomentArticleID == c.MyMomentArticleID &&
			existing.MonitoringProcessID == c.MonitoringProcessID &&
			existing.TargetLoginID == c.TargetLoginID &&
			existing.PromptTemplateID == c.PromptTemplateID {
			return store.ErrDuplicateComment
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	f.comments[c.ID] = &cp
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeCommentStore) ListByProcessAndStatus(_ context.Context, processID uuid.UUID, status models.CommentStatus) ([]models.AIComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AIComment
	for _, id := range f.order {
		c := f.comments[id]
		if c.MonitoringProcessID == processID && c.Status == status && c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCommentStore) MarkPrepared(_ context.Context, c *models.AIComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[c.ID]
	if !ok || row.Status != models.CommentStatusDiscovered {
		return store.ErrNotFound
	}
	row.ArticleTitle = c.ArticleTitle
	row.ArticleAuthor = c.ArticleAuthor
	row.ArticleCategory = c.ArticleCategory
	row.ArticleURL = c.ArticleURL
	row.ArticleContent = c.ArticleContent
	row.ArticleRawHTML = c.ArticleRawHTML
	row.ArticlePublishedAt = c.ArticlePublishedAt
	row.ArticleScrapedAt = c.ArticleScrapedAt
	row.Status = models.CommentStatusPrepared
	c.Status = models.CommentStatusPrepared
	return nil
}

func (f *fakeCommentStore) MarkGenerated(_ context.Context, c *models.AIComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[c.ID]
	if !ok || row.Status != models.CommentStatusPrepared {
		return store.ErrNotFound
	}
	row.CommentContent = c.CommentContent
	row.AIModelName = c.AIModelName
	row.AIProviderName = c.AIProviderName
	row.LLMProviderID = c.LLMProviderID
	row.GenerationTokens = c.GenerationTokens
	row.GenerationTimeMS = c.GenerationTimeMS
	row.Status = models.CommentStatusGenerated
	c.Status = models.CommentStatusGenerated
	return nil
}

func (f *fakeCommentStore) ClaimForPosting(_ context.Context, id uuid.UUID, loginID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[id]
	if !ok || row.Status != models.CommentStatusGenerated || row.PostedAt != nil || f.claimed[id] {
		return store.ErrNotFound
	}
	f.claimed[id] = true
	row.PlatformLoginID = &loginID
	return nil
}

func (f *fakeCommentStore) MarkPosted(_ context.Context, id uuid.UUID, platformCommentID string, loginID uuid.UUID, postedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[id]
	if !ok || row.Status != models.CommentStatusGenerated {
		return store.ErrNotFound
	}
	row.Status = models.CommentStatusPosted
	row.MyMomentCommentID = &platformCommentID
	row.PlatformLoginID = &loginID
	row.PostedAt = &postedAt
	return nil
}

func (f *fakeCommentStore) MarkFailed(_ context.Context, id uuid.UUID, from models.CommentStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[id]
	if !ok || row.Status != from {
		return store.ErrNotFound
	}
	row.Status = models.CommentStatusFailed
	row.ErrorMessage = &errMsg
	now := time.Now()
	row.FailedAt = &now
	return nil
}

func (f *fakeCommentStore) IncrementRetry(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.comments[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	row.RetryCount++
	return row.RetryCount, nil
}

func (f *fakeCommentStore) ExistsForPipelineKey(_ context.Context, articleID string, processID, targetLoginID, promptID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.comments {
		if c.IsActive && c.MyMomentArticleID == articleID &&
			c.MonitoringProcessID == processID &&
			c.TargetLoginID == targetLoginID &&
			c.PromptTemplateID == promptID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCommentStore) HasPostedForArticleLogin(_ context.Context, processID uuid.UUID, articleID string, loginID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.comments {
		if c.MonitoringProcessID == processID &&
			c.MyMomentArticleID == articleID &&
			c.TargetLoginID == loginID &&
			c.Status == models.CommentStatusPosted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCommentStore) byStatus(status models.CommentStatus) []*models.AIComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AIComment
	for _, id := range f.order {
		if f.comments[id].Status == status {
			out = append(out, f.comments[id])
		}
	}
	return out
}

type fakePromptStore struct {
	prompts map[uuid.UUID]*models.PromptTemplate
}

func (f *fakePromptStore) GetByID(_ context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	p, ok := f.prompts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

type postRecord struct {
	articleID string
	text      string
	ref       string
}

type fakeClient struct {
	tabs     []scraper.Tab
	articles []scraper.ArticleMetadata
	listErr  error

	details    map[string]*scraper.ArticleDetail
	fetchErr   error
	fetchCalls int
	fetchHook  func()

	posts    []postRecord
	postErr  error
	postHook func()
}

func (c *fakeClient) Authenticate(context.Context, string, string) error { return nil }
func (c *fakeClient) CheckAuthenticated(context.Context) (bool, error)  { return true, nil }
func (c *fakeClient) RestoreCookies(map[string]string) error            { return nil }
func (c *fakeClient) Cookies() map[string]string                        { return nil }
func (c *fakeClient) Close()                                            {}

func (c *fakeClient) ListTabs(context.Context) ([]scraper.Tab, error) {
	return c.tabs, nil
}

func (c *fakeClient) ListArticles(context.Context, scraper.ArticleFilters, int) ([]scraper.ArticleMetadata, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.articles, nil
}

func (c *fakeClient) FetchArticle(_ context.Context, articleID string) (*scraper.ArticleDetail, error) {
	c.fetchCalls++
	if c.fetchHook != nil {
		c.fetchHook()
	}
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	detail, ok := c.details[articleID]
	if !ok {
		return nil, fmt.Errorf("article %s not found", articleID)
	}
	return detail, nil
}

func (c *fakeClient) PostComment(_ context.Context, articleID, text, _, ref string) (string, error) {
	if c.postHook != nil {
		c.postHook()
	}
	if c.postErr != nil {
		return "", c.postErr
	}
	c.posts = append(c.posts, postRecord{articleID: articleID, text: text, ref: ref})
	return fmt.Sprintf("%s-1700000000-%s", articleID, ref[:8]), nil
}

type fakeSessions struct {
	clients map[uuid.UUID]*fakeClient
	err     error
}

func (f *fakeSessions) WithSession(ctx context.Context, loginID uuid.UUID, fn func(ctx context.Context, client platformsession.Client, session *models.PlatformSession) error) error {
	if f.err != nil {
		return f.err
	}
	client, ok := f.clients[loginID]
	if !ok {
		return fmt.Errorf("no client for login %s", loginID)
	}
	return fn(ctx, client, &models.PlatformSession{PlatformLoginID: loginID})
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	stages  []models.Stage
	revoked []uuid.UUID
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, stage models.Stage, processID uuid.UUID) (*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
	return &models.QueueJob{
		ID:                  uuid.New(),
		Queue:               stage,
		MonitoringProcessID: processID,
		Status:              models.JobStatusPending,
		EnqueuedAt:          time.Now(),
	}, nil
}

func (f *fakeEnqueuer) RevokeForProcess(_ context.Context, processID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, processID)
	return 1, nil
}

func (f *fakeEnqueuer) enqueued() []models.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Stage(nil), f.stages...)
}

type fakeCanceller struct {
	mu        sync.Mutex
	cancelled []uuid.UUID
}

func (f *fakeCanceller) CancelJob(jobID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return true
}

type fakeGenerator struct {
	comment  string
	err      error
	requests []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, _ []llm.Provider, req llm.Request) (*llm.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	tokens := 42
	return &llm.Result{
		Comment:          f.comment,
		ProviderName:     "openai",
		ModelName:        "gpt-4o-mini",
		ProviderConfigID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Tokens:           &tokens,
		DurationMS:       120,
	}, nil
}

type stubProvider struct{}

func (stubProvider) Name() string       { return "openai" }
func (stubProvider) Model() string      { return "gpt-4o-mini" }
func (stubProvider) ConfigID() uuid.UUID { return uuid.MustParse("11111111-1111-1111-1111-111111111111") }
func (stubProvider) GenerateComment(context.Context, string, string) (string, *int, error) {
	return "", nil, fmt.Errorf("not used")
}

type fakeProviderSource struct {
	providers []llm.Provider
	err       error
}

func (f *fakeProviderSource) ProvidersForProcess(context.Context, *models.MonitoringProcess) ([]llm.Provider, error) {
	return f.providers, f.err
}

type fakeCreds struct {
	usernames map[uuid.UUID]string
}

func (f *fakeCreds) Username(_ context.Context, loginID uuid.UUID) (string, error) {
	name, ok := f.usernames[loginID]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}
