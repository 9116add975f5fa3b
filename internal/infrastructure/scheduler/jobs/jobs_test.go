package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeCleaner struct {
	threshold time.Duration
	completed int
}

func (f *fakeCleaner) CleanupInactive(_ context.Context, threshold time.Duration) int {
	f.threshold = threshold
	return f.completed
}

func TestCleanupInactiveJob(t *testing.T) {
	cleaner := &fakeCleaner{completed: 3}
	job := NewCleanupInactiveJob(cleaner, timeutil.NewManualClock(start), nil, CleanupInactiveConfig{Threshold: 20 * time.Minute})

	assert.Equal(t, "cleanup_inactive", job.Name())
	assert.Nil(t, job.LastRunStats())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 20*time.Minute, cleaner.threshold)
	require.NotNil(t, job.LastRunStats())
	assert.Equal(t, 3, job.LastRunStats().SessionsCompleted)
	assert.Equal(t, start, job.LastRunStats().StartedAt)
}

func TestCleanupInactiveJob_DefaultThreshold(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewCleanupInactiveJob(cleaner, nil, nil, CleanupInactiveConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, DefaultCleanupInactiveConfig().Threshold, cleaner.threshold)
}

// ─────────────────────────────────────────────────────────────────────────────

type fakeDecisions struct {
	promotion.DecisionRepository
	pending []*promotion.Decision
	err     error
}

func (f *fakeDecisions) ListPending(_ context.Context, trainerID string, limit int) ([]*promotion.Decision, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

type recordingPublisher struct {
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func pendingDecision(id, trainerID string, age time.Duration) *promotion.Decision {
	return &promotion.Decision{
		ID:        id,
		TrainerID: trainerID,
		StudentID: "st-" + id,
		Status:    promotion.StatusPending,
		CreatedAt: start.Add(-age),
	}
}

func TestReviewReminderJob(t *testing.T) {
	clock := timeutil.NewManualClock(start)
	repo := &fakeDecisions{pending: []*promotion.Decision{
		pendingDecision("d1", "tr-1", 72*time.Hour),
		pendingDecision("d2", "tr-1", 50*time.Hour),
		pendingDecision("d3", "tr-2", time.Hour),
		pendingDecision("d4", "", 96*time.Hour),
	}}
	pub := &recordingPublisher{}
	job := NewReviewReminderJob(repo, pub, clock, nil, ReviewReminderConfig{OverdueAfter: 48 * time.Hour, Cooldown: 24 * time.Hour})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pub.events, 2)

	unassigned := pub.events[0].(shared.ReviewsOverdueEvent)
	assert.Equal(t, "", unassigned.AggregateID())
	assert.Equal(t, []string{"d4"}, unassigned.DecisionIDs)

	tr1 := pub.events[1].(shared.ReviewsOverdueEvent)
	assert.Equal(t, shared.EventReviewsOverdue, tr1.EventType())
	assert.Equal(t, "tr-1", tr1.AggregateID())
	assert.Equal(t, []string{"d1", "d2"}, tr1.DecisionIDs)
	assert.Equal(t, start.Add(-72*time.Hour), tr1.OldestAt)
	assert.Equal(t, 2, tr1.Payload()["count"])

	stats := job.LastRunStats()
	assert.Equal(t, 4, stats.PendingChecked)
	assert.Equal(t, 3, stats.OverdueFound)
	assert.Equal(t, 2, stats.TrainersReminded)

	// within the cooldown nobody is reminded twice
	clock.Advance(time.Hour)
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pub.events, 2)
	assert.Equal(t, 2, job.LastRunStats().SkippedCooldown)

	clock.Advance(24 * time.Hour)
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pub.events, 4)
}

func TestReviewReminderJob_Errors(t *testing.T) {
	repo := &fakeDecisions{err: errors.New("db down")}
	job := NewReviewReminderJob(repo, &recordingPublisher{}, timeutil.NewManualClock(start), nil, ReviewReminderConfig{})
	assert.ErrorContains(t, job.Run(context.Background()), "db down")

	repo = &fakeDecisions{pending: []*promotion.Decision{pendingDecision("d1", "tr-1", 72*time.Hour)}}
	pub := &recordingPublisher{err: errors.New("bus full")}
	job = NewReviewReminderJob(repo, pub, timeutil.NewManualClock(start), nil, ReviewReminderConfig{})
	assert.ErrorContains(t, job.Run(context.Background()), "bus full")

	// a failed publish does not start the cooldown
	pub.err = nil
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pub.events, 1)
}
