package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW REMINDER JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReviewReminderConfig contains configuration for the reminder job.
type ReviewReminderConfig struct {
	// OverdueAfter is how long a decision may stay pending before its
	// trainer is reminded.
	OverdueAfter time.Duration

	// Cooldown is the minimum time between two reminders to the same trainer.
	Cooldown time.Duration

	// BatchSize caps the number of pending decisions read per run.
	BatchSize int
}

// DefaultReviewReminderConfig returns sensible defaults.
func DefaultReviewReminderConfig() ReviewReminderConfig {
	return ReviewReminderConfig{
		OverdueAfter: 48 * time.Hour,
		Cooldown:     24 * time.Hour,
		BatchSize:    100,
	}
}

// ReviewReminderStats contains statistics from a reminder run.
type ReviewReminderStats struct {
	StartedAt        time.Time
	PendingChecked   int
	OverdueFound     int
	TrainersReminded int
	SkippedCooldown  int
}

// ReviewReminderJob publishes a ReviewsOverdueEvent per trainer whose
// pending promotion decisions are older than OverdueAfter.
type ReviewReminderJob struct {
	decisions promotion.DecisionRepository
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *slog.Logger
	config    ReviewReminderConfig

	mu           sync.Mutex
	lastReminded map[string]time.Time

	lastRunStats atomic.Pointer[ReviewReminderStats]
}

// NewReviewReminderJob creates a new reminder job.
func NewReviewReminderJob(
	decisions promotion.DecisionRepository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
	config ReviewReminderConfig,
) *ReviewReminderJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timeutil.Real()
	}
	defaults := DefaultReviewReminderConfig()
	if config.OverdueAfter <= 0 {
		config.OverdueAfter = defaults.OverdueAfter
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ReviewReminderJob{
		decisions:    decisions,
		publisher:    publisher,
		clock:        clock,
		logger:       logger.With("job", "review_reminder"),
		config:       config,
		lastReminded: make(map[string]time.Time),
	}
}

// Name returns the job name.
func (j *ReviewReminderJob) Name() string {
	return "review_reminder"
}

// Description returns a human-readable description.
func (j *ReviewReminderJob) Description() string {
	return "Reminds trainers about promotion decisions pending for longer than " + j.config.OverdueAfter.String()
}

// Run executes the reminder pass.
func (j *ReviewReminderJob) Run(ctx context.Context) error {
	now := j.clock.Now()
	stats := &ReviewReminderStats{StartedAt: now}
	defer j.lastRunStats.Store(stats)

	pending, err := j.decisions.ListPending(ctx, "", j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending decisions: %w", err)
	}
	stats.PendingChecked = len(pending)

	overdue := make(map[string][]*promotion.Decision)
	for _, d := range pending {
		if now.Sub(d.CreatedAt) >= j.config.OverdueAfter {
			overdue[d.TrainerID] = append(overdue[d.TrainerID], d)
			stats.OverdueFound++
		}
	}

	trainers := make([]string, 0, len(overdue))
	for trainerID := range overdue {
		trainers = append(trainers, trainerID)
	}
	sort.Strings(trainers)

	var errs []error
	for _, trainerID := range trainers {
		if !j.due(trainerID, now) {
			stats.SkippedCooldown++
			continue
		}

		event := buildOverdueEvent(trainerID, overdue[trainerID], now)
		if err := j.publisher.Publish(event); err != nil {
			errs = append(errs, fmt.Errorf("remind trainer %q: %w", trainerID, err))
			continue
		}
		j.markReminded(trainerID, now)
		stats.TrainersReminded++
	}

	if stats.OverdueFound > 0 {
		j.logger.Info("overdue promotion reviews",
			"overdue", stats.OverdueFound,
			"trainers_reminded", stats.TrainersReminded,
			"skipped_cooldown", stats.SkippedCooldown,
		)
	}
	return errors.Join(errs...)
}

// LastRunStats returns statistics from the last run, or nil.
func (j *ReviewReminderJob) LastRunStats() *ReviewReminderStats {
	return j.lastRunStats.Load()
}

func (j *ReviewReminderJob) due(trainerID string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	last, ok := j.lastReminded[trainerID]
	return !ok || now.Sub(last) >= j.config.Cooldown
}

func (j *ReviewReminderJob) markReminded(trainerID string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastReminded[trainerID] = now
}

func buildOverdueEvent(trainerID string, decisions []*promotion.Decision, now time.Time) shared.ReviewsOverdueEvent {
	ids := make([]string, 0, len(decisions))
	oldest := decisions[0].CreatedAt
	for _, d := range decisions {
		ids = append(ids, d.ID)
		if d.CreatedAt.Before(oldest) {
			oldest = d.CreatedAt
		}
	}
	return shared.ReviewsOverdueEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventReviewsOverdue, trainerID, now),
		DecisionIDs: ids,
		OldestAt:    oldest,
	}
}
