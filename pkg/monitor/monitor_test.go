package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/llm"
	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/scraper"
)

type testEnv struct {
	procs     *fakeProcessStore
	comments  *fakeCommentStore
	prompts   *fakePromptStore
	sessions  *fakeSessions
	jobs      *fakeEnqueuer
	generator *fakeGenerator
	providers *fakeProviderSource
	creds     *fakeCreds

	sleeps []time.Duration
	o      *Orchestrator

	proc    *models.MonitoringProcess
	loginID uuid.UUID
	prompt  *models.PromptTemplate
	client  *fakeClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		procs:     newFakeProcessStore(),
		comments:  newFakeCommentStore(),
		prompts:   &fakePromptStore{prompts: make(map[uuid.UUID]*models.PromptTemplate)},
		sessions:  &fakeSessions{clients: make(map[uuid.UUID]*fakeClient)},
		jobs:      &fakeEnqueuer{},
		generator: &fakeGenerator{comment: "Was für eine spannende Geschichte! Der Schluss hat mich überrascht."},
		providers: &fakeProviderSource{providers: []llm.Provider{stubProvider{}}},
		creds:     &fakeCreds{usernames: make(map[uuid.UUID]string)},
	}

	cfg := config.MonitoringConfig{
		AIPrefix:         config.DefaultAIPrefix,
		MinCommentLength: 10,
		MaxCommentLength: 500,
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
	}
	scraperCfg := config.ScraperConfig{
		PageLimit:      20,
		RateLimitDelay: 2 * time.Second,
	}

	env.o = New(env.procs, env.comments, env.prompts, env.sessions, env.jobs,
		env.generator, env.providers, env.creds, cfg, scraperCfg)
	env.o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	env.o.sleep = func(_ context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return nil
	}

	// One running process with one login and one prompt by default.
	env.loginID = uuid.New()
	env.prompt = &models.PromptTemplate{
		ID:                 uuid.New(),
		Name:               "Freundlicher Kommentar",
		SystemPrompt:       "Du bist eine freundliche Leserin.",
		UserPromptTemplate: "Kommentiere {article_title} von {article_author}.",
		IsActive:           true,
	}
	env.prompts.prompts[env.prompt.ID] = env.prompt

	started := time.Now().Add(-time.Minute)
	env.proc = &models.MonitoringProcess{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Name:               "Klasse 5b",
		MaxDurationMinutes: 60,
		Status:             models.ProcessStatusRunning,
		IsActive:           true,
		StartedAt:          &started,
	}
	env.procs.procs[env.proc.ID] = env.proc
	env.procs.logins[env.proc.ID] = []models.ProcessLogin{
		{MonitoringProcessID: env.proc.ID, PlatformLoginID: env.loginID, IsActive: true},
	}
	env.procs.prompts[env.proc.ID] = []models.ProcessPrompt{
		{MonitoringProcessID: env.proc.ID, PromptTemplateID: env.prompt.ID, Weight: 1, IsActive: true},
	}

	env.client = &fakeClient{
		tabs: []scraper.Tab{{ID: "alle", Label: "Alle Texte"}},
		details: map[string]*scraper.ArticleDetail{},
	}
	env.sessions.clients[env.loginID] = env.client
	env.creds.usernames[env.loginID] = "schueler_5b"

	return env
}

func (env *testEnv) job() *models.QueueJob {
	return &models.QueueJob{ID: uuid.New(), MonitoringProcessID: env.proc.ID}
}

// addComment seeds one pipeline row in the given status.
func (env *testEnv) addComment(t *testing.T, status models.CommentStatus) *models.AIComment {
	t.Helper()
	c := &models.AIComment{
		MyMomentArticleID:   uuid.NewString()[:6],
		UserID:              env.proc.UserID,
		TargetLoginID:       env.loginID,
		MonitoringProcessID: env.proc.ID,
		PromptTemplateID:    env.prompt.ID,
		ArticleTitle:        "Der verlorene Schatz",
		ArticleAuthor:       "Mia",
		ArticleURL:          "/article/101/",
		ArticleScrapedAt:    time.Now(),
		Status:              models.CommentStatusDiscovered,
		IsActive:            true,
	}
	require.NoError(t, env.comments.Create(context.Background(), c))
	if status == models.CommentStatusDiscovered {
		return c
	}

	c.ArticleContent = "Es war einmal ein Schatz tief im Wald."
	c.ArticleRawHTML = "<div>...</div>"
	require.NoError(t, env.comments.MarkPrepared(context.Background(), c))
	if status == models.CommentStatusPrepared {
		return c
	}

	content := config.DefaultAIPrefix + " Tolle Geschichte!"
	c.CommentContent = &content
	require.NoError(t, env.comments.MarkGenerated(context.Background(), c))
	return c
}

func TestStartProcess(t *testing.T) {
	env := newTestEnv(t)
	env.proc.Status = models.ProcessStatusCreated
	env.proc.StartedAt = nil

	require.NoError(t, env.o.StartProcess(context.Background(), env.proc.ID))

	assert.Equal(t, models.ProcessStatusRunning, env.procs.status(env.proc.ID))
	assert.Equal(t, []models.Stage{models.StageDiscovery}, env.jobs.enqueued())
	assert.NotEqual(t, uuid.Nil, env.procs.stageJob[models.StageDiscovery])
}

func TestStartProcessRequiresLoginsAndPrompts(t *testing.T) {
	env := newTestEnv(t)
	env.proc.Status = models.ProcessStatusCreated
	env.procs.logins[env.proc.ID] = nil

	err := env.o.StartProcess(context.Background(), env.proc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no platform logins")

	env.procs.logins[env.proc.ID] = []models.ProcessLogin{
		{PlatformLoginID: env.loginID, IsActive: true},
	}
	env.procs.prompts[env.proc.ID] = nil

	err = env.o.StartProcess(context.Background(), env.proc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prompt templates")
	assert.Empty(t, env.jobs.enqueued())
}

func TestStartProcessRejectsNonCreated(t *testing.T) {
	env := newTestEnv(t)

	err := env.o.StartProcess(context.Background(), env.proc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start")
}

func TestStopProcess(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.o.StopProcess(context.Background(), env.proc.ID))
	assert.Equal(t, models.ProcessStatusStopped, env.procs.status(env.proc.ID))

	// A process that never started can be stopped too.
	env2 := newTestEnv(t)
	env2.proc.Status = models.ProcessStatusCreated
	require.NoError(t, env2.o.StopProcess(context.Background(), env2.proc.ID))
	assert.Equal(t, models.ProcessStatusStopped, env2.procs.status(env2.proc.ID))
}

func TestStopProcessRevokesAndCancelsStageJobs(t *testing.T) {
	env := newTestEnv(t)
	jobID := uuid.New()
	env.proc.PreparationJobID = &jobID
	canceller := &fakeCanceller{}
	env.o.SetJobCanceller(canceller)

	require.NoError(t, env.o.StopProcess(context.Background(), env.proc.ID))

	assert.Equal(t, []uuid.UUID{env.proc.ID}, env.jobs.revoked,
		"pending stage jobs are revoked on stop")
	assert.Equal(t, []uuid.UUID{jobID}, canceller.cancelled,
		"the in-flight stage job is cancelled on stop")
}

func TestDiscoveryCreatesOneRowPerArticleLoginPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.client.articles = []scraper.ArticleMetadata{
		{ID: "101", Title: "Der verlorene Schatz", Author: "Mia", URL: "/article/101/"},
		{ID: "102", Title: "Ein Tag im Zoo", Author: "Ben", URL: "/article/102/"},
	}
	secondPrompt := &models.PromptTemplate{ID: uuid.New(), UserPromptTemplate: "{article_content}", IsActive: true}
	env.prompts.prompts[secondPrompt.ID] = secondPrompt
	env.procs.prompts[env.proc.ID] = append(env.procs.prompts[env.proc.ID],
		models.ProcessPrompt{PromptTemplateID: secondPrompt.ID, Weight: 1, IsActive: true})

	result := (&discoveryExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	discovered := env.comments.byStatus(models.CommentStatusDiscovered)
	assert.Len(t, discovered, 4, "2 articles x 1 login x 2 prompts")
	assert.Equal(t, [2]int{4, 0}, env.procs.progress[models.StageDiscovery])
	assert.Equal(t, []models.Stage{models.StagePreparation}, env.jobs.enqueued())
}

func TestDiscoverySkipsAlreadyTrackedCombinations(t *testing.T) {
	env := newTestEnv(t)
	env.client.articles = []scraper.ArticleMetadata{
		{ID: "101", Title: "Der verlorene Schatz", Author: "Mia", URL: "/article/101/"},
	}

	require.Equal(t, models.JobStatusCompleted,
		(&discoveryExecutor{env.o}).Execute(context.Background(), env.job()).Status)
	require.Equal(t, models.JobStatusCompleted,
		(&discoveryExecutor{env.o}).Execute(context.Background(), env.job()).Status)

	assert.Len(t, env.comments.byStatus(models.CommentStatusDiscovered), 1,
		"second cycle must not duplicate the pipeline row")
}

func TestDiscoverySkipsLoginWithoutConfiguredTab(t *testing.T) {
	env := newTestEnv(t)
	tab := "klasse"
	env.proc.TabFilter = &tab
	env.client.tabs = []scraper.Tab{{ID: "alle", Label: "Alle Texte"}}
	env.client.articles = []scraper.ArticleMetadata{{ID: "101", Title: "T", Author: "A"}}

	result := (&discoveryExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Empty(t, env.comments.byStatus(models.CommentStatusDiscovered))
	assert.Equal(t, [2]int{0, 1}, env.procs.progress[models.StageDiscovery],
		"a skipped login counts against the discovery error counter")
	// The pipeline still advances; the login is skipped, not the process.
	assert.Equal(t, []models.Stage{models.StagePreparation}, env.jobs.enqueued())
}

func TestDiscoveryHonorsHideComments(t *testing.T) {
	env := newTestEnv(t)
	env.proc.HideComments = true
	env.client.articles = []scraper.ArticleMetadata{{ID: "101", Title: "T", Author: "A"}}

	(&discoveryExecutor{env.o}).Execute(context.Background(), env.job())

	discovered := env.comments.byStatus(models.CommentStatusDiscovered)
	require.Len(t, discovered, 1)
	assert.True(t, discovered[0].IsHidden)
}

func TestStageSkippedWhenDeadlineExceeded(t *testing.T) {
	env := newTestEnv(t)
	started := time.Now().Add(-2 * time.Hour)
	env.proc.StartedAt = &started
	env.client.articles = []scraper.ArticleMetadata{{ID: "101", Title: "T", Author: "A"}}

	result := (&discoveryExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, models.ProcessStatusCompleted, env.procs.status(env.proc.ID))
	assert.Empty(t, env.comments.byStatus(models.CommentStatusDiscovered))
	assert.Empty(t, env.jobs.enqueued())
}

func TestStageSkippedWhenProcessStopped(t *testing.T) {
	env := newTestEnv(t)
	env.proc.Status = models.ProcessStatusStopped

	result := (&discoveryExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, models.ProcessStatusStopped, env.procs.status(env.proc.ID))
	assert.Empty(t, env.jobs.enqueued())
}

func TestPreparationSnapshotsArticle(t *testing.T) {
	env := newTestEnv(t)
	c := env.addComment(t, models.CommentStatusDiscovered)
	published := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	env.client.details[c.MyMomentArticleID] = &scraper.ArticleDetail{
		ArticleMetadata: scraper.ArticleMetadata{
			ID:          c.MyMomentArticleID,
			Title:       "Der verlorene Schatz",
			Author:      "Mia",
			PublishedAt: &published,
			URL:         "/article/101/",
		},
		Content: "Es war einmal ein Schatz tief im Wald.",
		RawHTML: "<div class=\"article\">...</div>",
	}

	result := (&preparationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	prepared := env.comments.byStatus(models.CommentStatusPrepared)
	require.Len(t, prepared, 1)
	assert.Equal(t, "Es war einmal ein Schatz tief im Wald.", prepared[0].ArticleContent)
	assert.Equal(t, &published, prepared[0].ArticlePublishedAt)
	assert.Equal(t, [2]int{1, 0}, env.procs.progress[models.StagePreparation])
	assert.Equal(t, []models.Stage{models.StageGeneration}, env.jobs.enqueued())
}

func TestPreparationRetriesWithBackoffThenFails(t *testing.T) {
	env := newTestEnv(t)
	c := env.addComment(t, models.CommentStatusDiscovered)
	env.client.fetchErr = errors.New("boom")

	result := (&preparationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)
	assert.Equal(t, 3, failed[0].RetryCount)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "after 3 attempts")
	// Backoff doubles between attempts: base, 2x base.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, env.sleeps)
	assert.Equal(t, [2]int{0, 1}, env.procs.progress[models.StagePreparation])
}

func TestPreparationFetchesEachArticleOnce(t *testing.T) {
	env := newTestEnv(t)
	first := env.addComment(t, models.CommentStatusDiscovered)

	// A second prompt produced a sibling row for the same article.
	sibling := &models.AIComment{
		MyMomentArticleID:   first.MyMomentArticleID,
		UserID:              env.proc.UserID,
		TargetLoginID:       env.loginID,
		MonitoringProcessID: env.proc.ID,
		PromptTemplateID:    uuid.New(),
		ArticleScrapedAt:    time.Now(),
		Status:              models.CommentStatusDiscovered,
		IsActive:            true,
	}
	require.NoError(t, env.comments.Create(context.Background(), sibling))
	env.client.details[first.MyMomentArticleID] = &scraper.ArticleDetail{
		ArticleMetadata: scraper.ArticleMetadata{ID: first.MyMomentArticleID, Title: "T", Author: "Mia"},
		Content:         "Es war einmal ein Schatz tief im Wald.",
	}

	result := (&preparationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Len(t, env.comments.byStatus(models.CommentStatusPrepared), 2)
	assert.Equal(t, 1, env.client.fetchCalls, "rows sharing an article reuse one fetch")
}

func TestPreparationHaltsMidBatchWhenProcessStopped(t *testing.T) {
	env := newTestEnv(t)
	first := env.addComment(t, models.CommentStatusDiscovered)
	second := env.addComment(t, models.CommentStatusDiscovered)
	for _, c := range []*models.AIComment{first, second} {
		env.client.details[c.MyMomentArticleID] = &scraper.ArticleDetail{
			ArticleMetadata: scraper.ArticleMetadata{ID: c.MyMomentArticleID, Title: "T", Author: "Mia"},
			Content:         "Inhalt",
		}
	}
	// The stop arrives while the first record is being fetched.
	env.client.fetchHook = func() {
		require.NoError(t, env.procs.TransitionStatus(context.Background(),
			env.proc.ID, models.ProcessStatusRunning, models.ProcessStatusStopped))
	}

	result := (&preparationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Len(t, env.comments.byStatus(models.CommentStatusPrepared), 1,
		"only the in-flight record finishes")
	assert.Len(t, env.comments.byStatus(models.CommentStatusDiscovered), 1,
		"later records must not transition after the stop")
	assert.Empty(t, env.jobs.enqueued(), "a stopped process enqueues no further stages")
}

func TestPreparationHaltsMidBatchWhenBudgetExpires(t *testing.T) {
	env := newTestEnv(t)
	first := env.addComment(t, models.CommentStatusDiscovered)
	second := env.addComment(t, models.CommentStatusDiscovered)
	for _, c := range []*models.AIComment{first, second} {
		env.client.details[c.MyMomentArticleID] = &scraper.ArticleDetail{
			ArticleMetadata: scraper.ArticleMetadata{ID: c.MyMomentArticleID, Title: "T", Author: "Mia"},
			Content:         "Inhalt",
		}
	}
	current := time.Now()
	env.o.now = func() time.Time { return current }
	// The budget runs out while the first record is being fetched.
	env.client.fetchHook = func() { current = current.Add(2 * time.Hour) }

	result := (&preparationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, models.ProcessStatusCompleted, env.procs.status(env.proc.ID))
	assert.Len(t, env.comments.byStatus(models.CommentStatusDiscovered), 1,
		"records past the budget stay untouched")
	assert.Empty(t, env.jobs.enqueued())
}

func TestGenerationRendersPromptAndStoresMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	generated := env.comments.byStatus(models.CommentStatusGenerated)
	require.Len(t, generated, 1)

	require.Len(t, env.generator.requests, 1)
	assert.Equal(t, "Du bist eine freundliche Leserin.", env.generator.requests[0].SystemPrompt)
	assert.Equal(t, "Kommentiere Der verlorene Schatz von Mia.", env.generator.requests[0].UserPrompt)

	require.NotNil(t, generated[0].CommentContent)
	assert.True(t, strings.HasPrefix(*generated[0].CommentContent, config.DefaultAIPrefix),
		"every generated comment carries the AI disclosure prefix")
	assert.Equal(t, "gpt-4o-mini", *generated[0].AIModelName)
	assert.Equal(t, "openai", *generated[0].AIProviderName)
	assert.Equal(t, 42, *generated[0].GenerationTokens)
	assert.Equal(t, []models.Stage{models.StagePosting}, env.jobs.enqueued())
}

func TestGenerationGenerateOnlyCyclesBackToDiscovery(t *testing.T) {
	env := newTestEnv(t)
	env.proc.GenerateOnly = true
	env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Len(t, env.comments.byStatus(models.CommentStatusGenerated), 1)
	assert.Equal(t, []models.Stage{models.StageDiscovery}, env.jobs.enqueued(),
		"generate-only skips posting and starts the next cycle")
}

func TestGenerationRejectsOutOfBoundsComments(t *testing.T) {
	env := newTestEnv(t)
	env.o.cfg.MinCommentLength = 100
	env.generator.comment = "Zu kurz."
	c := env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "too short")
	assert.Len(t, env.generator.requests, 3, "out-of-bounds output is retried before failing")
}

func TestGenerationLengthExcludesPrefix(t *testing.T) {
	env := newTestEnv(t)
	// Five characters of body; the 40+ character prefix must not pad it past
	// the minimum.
	env.generator.comment = "Kurz."
	c := env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "too short")
}

func TestGenerationRejectsPlaceholderRemnants(t *testing.T) {
	env := newTestEnv(t)
	env.generator.comment = "Tolle Geschichte, {article_author} hat das schön geschrieben!"
	env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "unresolved placeholder")
	assert.Len(t, env.generator.requests, 3, "remnant output is retried before failing")
}

func TestGenerationRejectsRepetitiveOutput(t *testing.T) {
	env := newTestEnv(t)
	env.generator.comment = "toll toll toll toll toll toll toll toll"
	env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "repetitive")
}

func TestGenerationFailsProcessWithoutProviders(t *testing.T) {
	env := newTestEnv(t)
	env.providers.providers = nil
	env.addComment(t, models.CommentStatusPrepared)

	result := (&generationExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, models.ProcessStatusFailed, env.procs.status(env.proc.ID))
}

func TestPostingPublishesAndFinalizes(t *testing.T) {
	env := newTestEnv(t)
	first := env.addComment(t, models.CommentStatusGenerated)
	second := env.addComment(t, models.CommentStatusGenerated)

	result := (&postingExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	posted := env.comments.byStatus(models.CommentStatusPosted)
	require.Len(t, posted, 2)
	for _, c := range posted {
		require.NotNil(t, c.MyMomentCommentID)
		require.NotNil(t, c.PostedAt)
		require.NotNil(t, c.PlatformLoginID)
		assert.Equal(t, env.loginID, *c.PlatformLoginID)
	}
	require.Len(t, env.client.posts, 2)
	assert.Equal(t, first.ID.String(), env.client.posts[0].ref)
	assert.Equal(t, second.ID.String(), env.client.posts[1].ref)
	// One rate-limit pause between the two posts.
	assert.Equal(t, []time.Duration{2 * time.Second}, env.sleeps)
	// A full cycle re-enters discovery while budget remains.
	assert.Equal(t, []models.Stage{models.StageDiscovery}, env.jobs.enqueued())
}

func TestPostingFailureAfterClaimIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	c := env.addComment(t, models.CommentStatusGenerated)
	env.client.postErr = errors.New("platform rejected the comment")

	result := (&postingExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Contains(t, *failed[0].ErrorMessage, "posting failed")
	assert.Equal(t, 0, failed[0].RetryCount, "posting is never retried")
	assert.Empty(t, env.client.posts)
}

func TestPostingSuppressesDuplicateForSameArticleLogin(t *testing.T) {
	env := newTestEnv(t)
	first := env.addComment(t, models.CommentStatusGenerated)

	// A second prompt produced a sibling row for the same article and login.
	sibling := &models.AIComment{
		MyMomentArticleID:   first.MyMomentArticleID,
		UserID:              env.proc.UserID,
		TargetLoginID:       env.loginID,
		MonitoringProcessID: env.proc.ID,
		PromptTemplateID:    uuid.New(),
		ArticleScrapedAt:    time.Now(),
		Status:              models.CommentStatusDiscovered,
		IsActive:            true,
	}
	require.NoError(t, env.comments.Create(context.Background(), sibling))
	require.NoError(t, env.comments.MarkPrepared(context.Background(), sibling))
	content := config.DefaultAIPrefix + " Auch sehr schön!"
	sibling.CommentContent = &content
	require.NoError(t, env.comments.MarkGenerated(context.Background(), sibling))

	result := (&postingExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	posted := env.comments.byStatus(models.CommentStatusPosted)
	require.Len(t, posted, 1)
	assert.Equal(t, first.ID, posted[0].ID)

	failed := env.comments.byStatus(models.CommentStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, sibling.ID, failed[0].ID)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Equal(t, "duplicate post suppressed", *failed[0].ErrorMessage)
	assert.Nil(t, failed[0].MyMomentCommentID, "the suppressed row never reaches the platform")

	assert.Len(t, env.client.posts, 1, "exactly one post per article and login")
	assert.Equal(t, [2]int{1, 1}, env.procs.progress[models.StagePosting])
}

func TestPostingHaltsMidBatchWhenProcessStopped(t *testing.T) {
	env := newTestEnv(t)
	env.addComment(t, models.CommentStatusGenerated)
	env.addComment(t, models.CommentStatusGenerated)
	// The stop arrives while the first comment is being published.
	env.client.postHook = func() {
		require.NoError(t, env.procs.TransitionStatus(context.Background(),
			env.proc.ID, models.ProcessStatusRunning, models.ProcessStatusStopped))
	}

	result := (&postingExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Len(t, env.comments.byStatus(models.CommentStatusPosted), 1)
	assert.Len(t, env.comments.byStatus(models.CommentStatusGenerated), 1,
		"later records must not transition after the stop")
	assert.Len(t, env.client.posts, 1)
	assert.Empty(t, env.jobs.enqueued(), "a stopped process starts no new cycle")
}

func TestPostingSkipsGenerateOnlyProcesses(t *testing.T) {
	env := newTestEnv(t)
	env.proc.GenerateOnly = true
	env.addComment(t, models.CommentStatusGenerated)

	result := (&postingExecutor{env.o}).Execute(context.Background(), env.job())

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Len(t, env.comments.byStatus(models.CommentStatusGenerated), 1)
	assert.Empty(t, env.client.posts)
}

func TestCycleCompletesWhenBudgetExhaustedAfterPosting(t *testing.T) {
	env := newTestEnv(t)
	env.addComment(t, models.CommentStatusGenerated)
	// Budget runs out mid-stage: the posting itself proceeds, the next cycle
	// does not.
	env.o.now = func() time.Time { return env.proc.StartedAt.Add(61 * time.Minute) }
	proc, err := env.procs.GetByID(context.Background(), env.proc.ID)
	require.NoError(t, err)

	require.NoError(t, env.o.advance(context.Background(), proc, models.StagePosting))

	assert.Equal(t, models.ProcessStatusCompleted, env.procs.status(env.proc.ID))
	assert.Empty(t, env.jobs.enqueued())
}

func TestEnsureAIPrefix(t *testing.T) {
	prefix := config.DefaultAIPrefix

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain comment", "Tolle Geschichte!", prefix + " Tolle Geschichte!"},
		{"already prefixed", prefix + " Tolle Geschichte!", prefix + " Tolle Geschichte!"},
		{"surrounding whitespace", "  Tolle Geschichte!\n", prefix + " Tolle Geschichte!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureAIPrefix(tt.content, prefix))
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	category := 5
	published := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	values := PlaceholderValues{
		ArticleTitle:       "Der verlorene Schatz",
		ArticleContent:     "Es war einmal...",
		ArticleAuthor:      "Mia",
		ArticleCategory:    &category,
		ArticlePublishedAt: &published,
		ArticleURL:         "/article/101/",
		PlatformUsername:   "schueler_5b",
	}

	rendered, err := RenderPrompt(
		"Lies {article_title} von {article_author} ({article_published_at}): {article_content}", values)
	require.NoError(t, err)
	assert.Equal(t, "Lies Der verlorene Schatz von Mia (14.03.2025 09:30): Es war einmal...", rendered)

	_, err = RenderPrompt("Hallo {unknown_thing}", values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_thing")
}

func TestValidatePlaceholders(t *testing.T) {
	assert.Empty(t, ValidatePlaceholders("Kommentiere {article_title} als {platform_username}"))
	assert.Equal(t, []string{"bad_one"}, ValidatePlaceholders("{article_title} {bad_one} {bad_one}"))
}
