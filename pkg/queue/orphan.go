package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned jobs.
// All pods run this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds running jobs with stale heartbeats and marks
// them timed_out (terminal state).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	orphans, err := p.jobs.StaleRunning(ctx, threshold)
	if err != nil {
		return fmt.Errorf("failed to query orphaned jobs: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("Detected orphaned jobs", "count", len(orphans))

	recovered := 0
	for _, job := range orphans {
		lastHeartbeat := "unknown"
		if job.LastHeartbeatAt != nil {
			lastHeartbeat = job.LastHeartbeatAt.Format(time.RFC3339)
		}
		podID := "unknown"
		if job.PodID != nil {
			podID = *job.PodID
		}

		err := p.jobs.Finish(ctx, job.ID, models.JobStatusTimedOut,
			fmt.Errorf("orphaned: no heartbeat from pod %s since %s", podID, lastHeartbeat))
		if err != nil {
			slog.Error("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		slog.Warn("Orphaned job marked as timed_out",
			"job_id", job.ID, "queue", job.Queue, "last_heartbeat", lastHeartbeat)
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	return nil
}

// CleanupStartupOrphans performs a one-time cleanup of jobs owned by this pod
// that were running when the pod previously crashed.
// Called once during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, jobs *Jobs, podID string) error {
	orphans, err := jobs.RunningForPod(ctx, podID)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("Found startup orphans from previous run",
		"pod_id", podID, "count", len(orphans))

	for _, job := range orphans {
		err := jobs.Finish(ctx, job.ID, models.JobStatusTimedOut,
			fmt.Errorf("orphaned: pod %s restarted while job was running", podID))
		if err != nil {
			slog.Error("Failed to mark startup orphan", "job_id", job.ID, "error", err)
			continue
		}
		slog.Info("Startup orphan recovered", "job_id", job.ID, "queue", job.Queue)
	}
	return nil
}
