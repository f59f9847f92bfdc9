package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how stage jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes stage jobs.
	WorkerCount int

	// MaxConcurrentJobs is the global limit of concurrent jobs being
	// processed across ALL replicas/pods. Enforced by database COUNT(*) check.
	MaxConcurrentJobs int

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// JobTimeout is the maximum time a single stage job can run.
	JobTimeout time.Duration

	// HeartbeatInterval is how often a worker refreshes the job heartbeat.
	HeartbeatInterval time.Duration

	// GracefulShutdownTimeout is the max time to wait for active jobs
	// to complete during shutdown. Should match JobTimeout.
	GracefulShutdownTimeout time.Duration

	// OrphanDetectionInterval is how often to scan for orphaned jobs.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a job can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentJobs:       8,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		JobTimeout:              15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}
