// Package jobs contains the scheduled maintenance jobs of the training service.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLEANUP INACTIVE JOB
// ══════════════════════════════════════════════════════════════════════════════

// InactiveSessionCleaner is the part of the lifecycle manager the job drives.
type InactiveSessionCleaner interface {
	CleanupInactive(ctx context.Context, threshold time.Duration) int
}

// CleanupInactiveConfig contains configuration for the cleanup job.
type CleanupInactiveConfig struct {
	// Threshold is the idle time after which a live session is completed
	// with reason "inactive".
	Threshold time.Duration

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultCleanupInactiveConfig returns sensible defaults.
func DefaultCleanupInactiveConfig() CleanupInactiveConfig {
	return CleanupInactiveConfig{
		Threshold: 30 * time.Minute,
		Timeout:   2 * time.Minute,
	}
}

// CleanupInactiveStats contains statistics from a cleanup run.
type CleanupInactiveStats struct {
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
	SessionsCompleted int
}

// CleanupInactiveJob completes sessions abandoned by their students.
type CleanupInactiveJob struct {
	cleaner InactiveSessionCleaner
	clock   timeutil.Clock
	logger  *slog.Logger
	config  CleanupInactiveConfig

	lastRunStats atomic.Pointer[CleanupInactiveStats]
}

// NewCleanupInactiveJob creates a new cleanup job.
func NewCleanupInactiveJob(
	cleaner InactiveSessionCleaner,
	clock timeutil.Clock,
	logger *slog.Logger,
	config CleanupInactiveConfig,
) *CleanupInactiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timeutil.Real()
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultCleanupInactiveConfig().Threshold
	}

	return &CleanupInactiveJob{
		cleaner: cleaner,
		clock:   clock,
		logger:  logger.With("job", "cleanup_inactive"),
		config:  config,
	}
}

// Name returns the job name.
func (j *CleanupInactiveJob) Name() string {
	return "cleanup_inactive"
}

// Description returns a human-readable description.
func (j *CleanupInactiveJob) Description() string {
	return "Completes sessions idle for longer than " + j.config.Threshold.String()
}

// Run executes the cleanup.
func (j *CleanupInactiveJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &CleanupInactiveStats{StartedAt: j.clock.Now()}
	stats.SessionsCompleted = j.cleaner.CleanupInactive(ctx, j.config.Threshold)
	stats.CompletedAt = j.clock.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	if stats.SessionsCompleted > 0 {
		j.logger.Info("inactive sessions completed",
			"count", stats.SessionsCompleted,
			"threshold", j.config.Threshold.String(),
		)
	}
	return ctx.Err()
}

// LastRunStats returns statistics from the last run, or nil.
func (j *CleanupInactiveJob) LastRunStats() *CleanupInactiveStats {
	return j.lastRunStats.Load()
}
