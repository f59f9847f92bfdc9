// Package llm is the comment generation gateway: provider clients for OpenAI
// and Mistral, schema-constrained output, per-provider pacing, and a fallback
// chain across a user's configured providers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/crypto"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// Provider is one configured LLM backend.
type Provider interface {
	Name() string
	Model() string
	ConfigID() uuid.UUID
	GenerateComment(ctx context.Context, systemPrompt, userPrompt string) (comment string, tokens *int, err error)
}

// Request is one comment generation request, prompts already rendered.
type Request struct {
	SystemPrompt string
	UserPrompt   string
}

// Result is a successful generation with its attribution metadata.
type Result struct {
	Comment          string
	ProviderName     string
	ModelName        string
	ProviderConfigID uuid.UUID
	Tokens           *int
	DurationMS       int
}

// ProviderAttempt records one failed provider in an exhausted chain.
type ProviderAttempt struct {
	ProviderName string
	ModelName    string
	Err          error
}

// ProviderExhaustionError is returned when every configured provider failed.
type ProviderExhaustionError struct {
	Attempts []ProviderAttempt
}

func (e *ProviderExhaustionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %v", a.ProviderName, a.ModelName, a.Err))
	}
	return fmt.Sprintf("all %d LLM providers failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// NewProviderFromConfig decrypts the API key and builds the matching client.
func NewProviderFromConfig(cfg *models.LLMProviderConfig, vault *crypto.Vault) (Provider, error) {
	apiKey, err := vault.DecryptAPIKey(cfg.EncryptedAPIKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting API key for provider %s: %w", cfg.ID, err)
	}
	switch cfg.ProviderName {
	case models.ProviderOpenAI:
		return newOpenAIProvider(cfg.ID, apiKey, cfg.ModelName, cfg.MaxTokens, cfg.Temperature), nil
	case models.ProviderMistral:
		return newMistralProvider(cfg.ID, apiKey, cfg.ModelName, cfg.MaxTokens, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.ProviderName)
	}
}

// Gateway runs generation requests against an ordered provider chain.
type Gateway struct {
	timeout  time.Duration
	minDelay time.Duration

	mu       sync.Mutex
	lastCall map[uuid.UUID]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

// NewGateway builds a gateway with the given per-call timeout and minimum
// delay between calls to the same provider configuration.
func NewGateway(timeout, minDelay time.Duration) *Gateway {
	return &Gateway{
		timeout:  timeout,
		minDelay: minDelay,
		lastCall: make(map[uuid.UUID]time.Time),
		now:      time.Now,
		sleep:    sleepCtx,
		log:      slog.With("component", "llm"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pace blocks until the provider's minimum inter-call delay has elapsed,
// reserving the next slot before releasing the lock.
func (g *Gateway) pace(ctx context.Context, configID uuid.UUID) error {
	g.mu.Lock()
	now := g.now()
	var wait time.Duration
	if last, ok := g.lastCall[configID]; ok {
		if next := last.Add(g.minDelay); next.After(now) {
			wait = next.Sub(now)
		}
	}
	g.lastCall[configID] = now.Add(wait)
	g.mu.Unlock()

	if wait > 0 {
		return g.sleep(ctx, wait)
	}
	return nil
}

// Generate tries each provider in order and returns the first success. When
// every provider fails, the error is a *ProviderExhaustionError carrying each
// attempt's failure.
func (g *Gateway) Generate(ctx context.Context, providers []Provider, req Request) (*Result, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	var attempts []ProviderAttempt
	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.pace(ctx, provider.ConfigID()); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		start := g.now()
		comment, tokens, err := provider.GenerateComment(callCtx, req.SystemPrompt, req.UserPrompt)
		duration := g.now().Sub(start)
		cancel()

		if err != nil {
			g.log.Warn("LLM provider failed, trying next",
				"provider", provider.Name(), "model", provider.Model(), "error", err)
			attempts = append(attempts, ProviderAttempt{
				ProviderName: provider.Name(),
				ModelName:    provider.Model(),
				Err:          err,
			})
			continue
		}

		return &Result{
			Comment:          comment,
			ProviderName:     provider.Name(),
			ModelName:        provider.Model(),
			ProviderConfigID: provider.ConfigID(),
			Tokens:           tokens,
			DurationMS:       int(duration.Milliseconds()),
		}, nil
	}
	return nil, &ProviderExhaustionError{Attempts: attempts}
}
