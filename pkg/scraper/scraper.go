// Package scraper is the platform adapter for myMoment: form login, cookie
// session, article index/detail parsing, and comment submission. It is the
// only package that reads the platform's HTML.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/version"
)

// ScrapingError wraps any failure talking to or parsing the platform.
type ScrapingError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ScrapingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scraping %s failed: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("scraping %s failed: %v", e.Op, e.Err)
}

func (e *ScrapingError) Unwrap() error { return e.Err }

// Unauthorized reports whether the platform rejected the session (401/403).
// Callers should re-authenticate at most once before surfacing the failure.
func (e *ScrapingError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DomainLimiter is the outbound politeness contract: every request waits for
// the per-domain minimum gap first.
type DomainLimiter interface {
	WaitIfNeeded(ctx context.Context, rawURL string) error
}

// Session is a stateful, cookie-bearing connection to the platform on behalf
// of one login. Not safe for concurrent use; the session manager serializes
// access per login.
type Session struct {
	cfg           config.ScraperConfig
	client        *http.Client
	limiter       DomainLimiter
	authenticated bool
	log           *slog.Logger
}

// NewSession creates an unauthenticated session with a fresh cookie jar.
func NewSession(cfg config.ScraperConfig, limiter DomainLimiter) *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{
		cfg: cfg,
		client: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		limiter: limiter,
		log:     slog.With("component", "scraper"),
	}
}

// Authenticated reports the last known authentication state.
func (s *Session) Authenticated() bool { return s.authenticated }

// Close releases idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// Cookies returns the current session cookies as a name→value map for
// encrypted persistence.
func (s *Session) Cookies() map[string]string {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil
	}
	out := make(map[string]string)
	for _, c := range s.client.Jar.Cookies(base) {
		out[c.Name] = c.Value
	}
	return out
}

// RestoreCookies seeds the jar from a previously persisted cookie map.
func (s *Session) RestoreCookies(cookies map[string]string) error {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	restored := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		restored = append(restored, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	s.client.Jar.SetCookies(base, restored)
	return nil
}

// get fetches a page and parses it, honoring the domain limiter.
func (s *Session) get(ctx context.Context, op, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.WaitIfNeeded(ctx, pageURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &ScrapingError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ScrapingError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.noteStatus(resp.StatusCode)
		return nil, &ScrapingError{Op: op, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ScrapingError{Op: op, Err: fmt.Errorf("parsing HTML: %w", err)}
	}
	return doc, nil
}

// postForm submits a urlencoded form, honoring the domain limiter. Redirects
// count as success: the platform answers form posts with 302.
func (s *Session) postForm(ctx context.Context, op, formURL, referer string, form url.Values) (*http.Response, error) {
	if err := s.limiter.WaitIfNeeded(ctx, formURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ScrapingError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ScrapingError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		s.noteStatus(resp.StatusCode)
		return resp, &ScrapingError{Op: op, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (s *Session) noteStatus(code int) {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		s.authenticated = false
	}
}

func (s *Session) absoluteURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + path
}

// parseGermanDate parses the platform's dd.mm.yyyy timestamps, with and
// without a time part. Returns nil when the value is not a date.
func parseGermanDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"02.01.2006 15:04", "02.01.2006"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
