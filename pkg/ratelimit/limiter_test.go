package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter's notion of time in tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time              { return c.now }
func (c *fakeClock) Advance(d time.Duration)     { c.now = c.now.Add(d) }
func newFakeClock() *fakeClock                   { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }
func withClock(l *Limiter, c *fakeClock) *Limiter {
	l.now = c.Now
	return l
}

func TestAllowBurstThenDeny(t *testing.T) {
	clock := newFakeClock()
	l := withClock(NewWithRules(map[string]Rule{
		"test": {Name: "test", Requests: 10, Window: time.Minute, Burst: 3},
	}, DefaultDomainDelays()), clock)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("test", "user-1"), "burst request %d should pass", i)
	}
	assert.False(t, l.Allow("test", "user-1"), "burst exhausted")

	// Tokens refill at requests/window = 1 per 6s.
	clock.Advance(6 * time.Second)
	assert.True(t, l.Allow("test", "user-1"))
}

func TestSlidingWindowCapsBelowBucket(t *testing.T) {
	clock := newFakeClock()
	l := withClock(NewWithRules(map[string]Rule{
		"test": {Name: "test", Requests: 2, Window: time.Minute, Burst: 5},
	}, DefaultDomainDelays()), clock)

	assert.True(t, l.Allow("test", "u"))
	assert.True(t, l.Allow("test", "u"))
	// Bucket still has tokens, but the window says no.
	assert.False(t, l.Allow("test", "u"))

	clock.Advance(61 * time.Second)
	assert.True(t, l.Allow("test", "u"))
}

func TestIdentifiersAreIsolated(t *testing.T) {
	clock := newFakeClock()
	l := withClock(NewWithRules(map[string]Rule{
		"test": {Name: "test", Requests: 10, Window: time.Minute, Burst: 1},
	}, DefaultDomainDelays()), clock)

	assert.True(t, l.Allow("test", "user-a"))
	assert.False(t, l.Allow("test", "user-a"))
	assert.True(t, l.Allow("test", "user-b"), "other identifier has its own bucket")
}

func TestUnknownRuleAdmits(t *testing.T) {
	l := New()
	assert.True(t, l.Allow("no-such-rule", "x"))
}

func TestRetryAfter(t *testing.T) {
	clock := newFakeClock()
	l := withClock(NewWithRules(map[string]Rule{
		"test": {Name: "test", Requests: 2, Window: time.Minute, Burst: 2},
	}, DefaultDomainDelays()), clock)

	require.True(t, l.Allow("test", "u"))
	require.True(t, l.Allow("test", "u"))
	require.False(t, l.Allow("test", "u"))

	wait := l.RetryAfter("test", "u")
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Minute)
}

func TestWaitIfNeededEnforcesDomainGap(t *testing.T) {
	clock := newFakeClock()
	var slept []time.Duration
	l := withClock(New(), clock)
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()

	// First request goes straight through.
	require.NoError(t, l.WaitIfNeeded(ctx, "https://new.mymoment.ch/articles/"))
	assert.Empty(t, slept)

	// Immediate second request waits the 2s mymoment gap.
	require.NoError(t, l.WaitIfNeeded(ctx, "https://new.mymoment.ch/article/5/"))
	require.Len(t, slept, 1)
	assert.Equal(t, 2*time.Second, slept[0])

	// Unknown domain uses the 1s default.
	require.NoError(t, l.WaitIfNeeded(ctx, "https://example.org/a"))
	require.NoError(t, l.WaitIfNeeded(ctx, "https://example.org/b"))
	require.Len(t, slept, 2)
	assert.Equal(t, time.Second, slept[1])
}

func TestWaitIfNeededRespectsCancellation(t *testing.T) {
	clock := newFakeClock()
	l := withClock(New(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.WaitIfNeeded(ctx, "https://new.mymoment.ch/"))
	cancel()
	err := l.WaitIfNeeded(ctx, "https://new.mymoment.ch/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanupEvictsIdleBuckets(t *testing.T) {
	clock := newFakeClock()
	l := withClock(New(), clock)

	require.True(t, l.Allow(RuleAPIGeneral, "user-1"))
	require.True(t, l.Allow(RuleAPIAuth, "user-2"))
	assert.Equal(t, 2, l.BucketCount())

	clock.Advance(30 * time.Minute)
	require.True(t, l.Allow(RuleAPIGeneral, "user-1")) // keeps this one fresh

	clock.Advance(31 * time.Minute)
	evicted := l.Cleanup(time.Hour)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, l.BucketCount())
}
