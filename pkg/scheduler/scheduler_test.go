package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddEveryRegistersJobs(t *testing.T) {
	s := New()
	s.AddEvery("backup-sweep", time.Hour, func(context.Context) {})
	s.AddEvery("retention", time.Hour, func(context.Context) {})

	assert.Equal(t, []string{"backup-sweep", "retention"}, s.Jobs())
}

func TestJobsRunOnTheirInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on wall-clock cron ticks")
	}

	var runs atomic.Int32
	s := New()
	s.AddEvery("tick", time.Second, func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		runs.Add(1)
	})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 4*time.Second, 50*time.Millisecond)
}

func TestStopCancelsJobContext(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on wall-clock cron ticks")
	}

	started := make(chan struct{})
	var sawCancel atomic.Bool
	s := New()
	s.AddEvery("long", time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
	})

	s.Start(context.Background())
	<-started
	s.Stop()

	assert.True(t, sawCancel.Load(), "Stop waits for jobs and cancels their context")
}

func TestRecoversFromPanickingJob(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on wall-clock cron ticks")
	}

	var after atomic.Int32
	s := New()
	s.AddEvery("boom", time.Second, func(context.Context) {
		panic("job blew up")
	})
	s.AddEvery("steady", time.Second, func(context.Context) {
		after.Add(1)
	})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return after.Load() >= 2
	}, 4*time.Second, 50*time.Millisecond, "other jobs keep running after a panic")
}
