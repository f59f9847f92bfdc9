// Package ratelimit provides a hybrid token-bucket / sliding-window rate
// limiter for inbound API traffic and a per-domain politeness delay for
// outbound scraping.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Rule describes one rate-limit preset: at most Requests hits per Window,
// with short bursts up to Burst tokens.
type Rule struct {
	Name     string
	Requests int
	Window   time.Duration
	Burst    int
}

// Predefined rule names.
const (
	RuleAPIGeneral       = "api_general"
	RuleAPIAuth          = "api_auth"
	RuleAPIScraping      = "api_scraping"
	RuleMyMomentScraping = "mymoment_scraping"
	RuleGeneralScraping  = "general_scraping"
)

// DefaultRules returns the built-in rule presets.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		RuleAPIGeneral:       {Name: RuleAPIGeneral, Requests: 100, Window: time.Minute, Burst: 10},
		RuleAPIAuth:          {Name: RuleAPIAuth, Requests: 5, Window: time.Minute, Burst: 2},
		RuleAPIScraping:      {Name: RuleAPIScraping, Requests: 10, Window: time.Minute, Burst: 2},
		RuleMyMomentScraping: {Name: RuleMyMomentScraping, Requests: 20, Window: time.Minute, Burst: 3},
		RuleGeneralScraping:  {Name: RuleGeneralScraping, Requests: 30, Window: time.Minute, Burst: 5},
	}
}

// DefaultDomainDelays returns the built-in minimum per-domain request gaps
// for outbound scraping.
func DefaultDomainDelays() map[string]time.Duration {
	return map[string]time.Duration{
		"mymoment.ch":     2 * time.Second,
		"new.mymoment.ch": 2 * time.Second,
		"default":         1 * time.Second,
	}
}

// bucket is the per-identifier state: a continuously refilled token count
// plus a sliding window of recent admission timestamps.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	requests   []time.Time
	lastUsed   time.Time
}

// Limiter admits requests when both the sliding window and the token bucket
// permit. It also tracks per-domain last-request times for WaitIfNeeded.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	buckets map[string]*bucket

	domainMu     sync.Mutex
	domainDelays map[string]time.Duration
	lastRequest  map[string]time.Time

	// now is replaceable in tests.
	now func() time.Time
	// sleep is replaceable in tests; must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error

	log *slog.Logger
}

// New creates a limiter with the default rule presets and domain delays.
func New() *Limiter {
	return NewWithRules(DefaultRules(), DefaultDomainDelays())
}

// NewWithRules creates a limiter with explicit rules and domain delays.
func NewWithRules(rules map[string]Rule, domainDelays map[string]time.Duration) *Limiter {
	return &Limiter{
		rules:        rules,
		buckets:      make(map[string]*bucket),
		domainDelays: domainDelays,
		lastRequest:  make(map[string]time.Time),
		now:          time.Now,
		sleep:        sleepContext,
		log:          slog.With("component", "ratelimit"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Allow reports whether one request under ruleName for identifier is
// admitted now. Identifiers are expected to be the authenticated user id or,
// failing that, the client IP. Unknown rules admit everything.
func (l *Limiter) Allow(ruleName, identifier string) bool {
	rule, ok := l.rules[ruleName]
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ruleName + ":" + identifier
	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:     float64(rule.Burst),
			lastRefill: now,
		}
		l.buckets[key] = b
	}
	b.lastUsed = now

	// Continuous refill at requests/window, capped at burst.
	elapsed := now.Sub(b.lastRefill).Seconds()
	rate := float64(rule.Requests) / rule.Window.Seconds()
	b.tokens = min(float64(rule.Burst), b.tokens+elapsed*rate)
	b.lastRefill = now

	// Slide the window.
	cutoff := now.Add(-rule.Window)
	kept := b.requests[:0]
	for _, ts := range b.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.requests = kept

	if len(b.requests) >= rule.Requests {
		return false
	}
	if b.tokens < 1 {
		return false
	}

	b.tokens--
	b.requests = append(b.requests, now)
	return true
}

// RetryAfter estimates how long the caller should wait before a request
// under ruleName for identifier could be admitted.
func (l *Limiter) RetryAfter(ruleName, identifier string) time.Duration {
	rule, ok := l.rules[ruleName]
	if !ok {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ruleName+":"+identifier]
	if !ok {
		return 0
	}

	now := l.now()
	var wait time.Duration
	if len(b.requests) >= rule.Requests {
		oldest := b.requests[0]
		wait = oldest.Add(rule.Window).Sub(now)
	}
	if b.tokens < 1 {
		rate := float64(rule.Requests) / rule.Window.Seconds()
		refillWait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
		if refillWait > wait {
			wait = refillWait
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// WaitIfNeeded blocks until the per-domain minimum gap for rawURL's host has
// elapsed since the previous outbound request to that host. The reservation
// is taken up front so concurrent callers space themselves out.
func (l *Limiter) WaitIfNeeded(ctx context.Context, rawURL string) error {
	domain := domainOf(rawURL)
	delay := l.delayFor(domain)

	l.domainMu.Lock()
	now := l.now()
	last, seen := l.lastRequest[domain]
	var wait time.Duration
	if seen {
		if gap := now.Sub(last); gap < delay {
			wait = delay - gap
		}
	}
	l.lastRequest[domain] = now.Add(wait)
	l.domainMu.Unlock()

	if wait <= 0 {
		return nil
	}
	l.log.Debug("Throttling outbound request", "domain", domain, "wait", wait)
	return l.sleep(ctx, wait)
}

func (l *Limiter) delayFor(domain string) time.Duration {
	if d, ok := l.domainDelays[domain]; ok {
		return d
	}
	if d, ok := l.domainDelays["default"]; ok {
		return d
	}
	return time.Second
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := u.Host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host, "]") {
		host = host[:i]
	}
	return host
}

// Cleanup evicts buckets idle for longer than maxIdle and returns the number
// evicted. Intended to run periodically (every few minutes).
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	evicted := 0
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	if evicted > 0 {
		l.log.Debug("Evicted idle rate-limit buckets", "count", evicted)
	}
	return evicted
}

// BucketCount returns the number of live buckets (for health reporting).
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// String implements fmt.Stringer for debug logging.
func (l *Limiter) String() string {
	return fmt.Sprintf("ratelimit.Limiter{rules=%d, buckets=%d}", len(l.rules), l.BucketCount())
}
