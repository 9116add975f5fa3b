package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

// Complete finishes the session. It is idempotent: concurrent and repeated
// calls observe the same CompletionResult and no counter changes twice.
func (m *Manager) Complete(ctx context.Context, id, reason string) (*CompletionResult, error) {
	if reason == "" {
		reason = training.ReasonManual
	}

	c, owner, err := m.beginCompletion(id, reason)
	if err != nil {
		return nil, err
	}
	if owner {
		m.finish(ctx, c)
	}

	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) beginCompletion(id, reason string) (*completion, bool, error) {
	m.mu.RLock()
	ls, live := m.live[id]
	c, finished := m.finished[id]
	m.mu.RUnlock()

	if !live {
		if finished {
			return c, false, nil
		}
		return nil, false, shared.ErrSessionNotFound
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.completion != nil {
		return ls.completion, false, nil
	}
	return m.beginCompletionLocked(ls, reason, m.clock.Now()), true, nil
}

// beginCompletionLocked performs the terminal transition and moves the entry
// from the live table to the finished table. Caller holds ls.mu and must call
// finish with the returned completion.
func (m *Manager) beginCompletionLocked(ls *liveSession, reason string, now time.Time) *completion {
	ls.session.Complete(reason, now)
	ls.stopTimers()

	save := ls.snapshot()
	c := &completion{session: save.session, save: save, done: make(chan struct{})}
	ls.completion = c

	m.mu.Lock()
	delete(m.live, ls.session.ID)
	m.finished[ls.session.ID] = c
	m.mu.Unlock()
	return c
}

// finish scores and evaluates the completed snapshot, then persists and
// notifies. It runs without any session lock held.
func (m *Manager) finish(ctx context.Context, c *completion) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.EffectTimeout)
	defer cancel()

	s := c.session
	now := m.clock.Now()
	history := m.recentHistory(ctx, s)

	result := &CompletionResult{
		Session:    s,
		Status:     viewStatus(s, now),
		Assessment: m.deps.Scorer.Analyze(s, history),
	}
	m.persist(ctx, c.save)

	result.Decision = m.evaluate(ctx, s, history, now)

	event := shared.SessionCompletedEvent{
		BaseEvent:              shared.NewBaseEvent(shared.EventSessionCompleted, s.ID, now),
		Recipients:             recipients(s),
		Reason:                 s.CompletionReason,
		Result:                 string(s.Result),
		Accuracy:               s.Accuracy,
		CompletionRate:         s.CompletionRate,
		AverageTimePerQuestion: s.AverageTimePerQuestion,
		OverallScore:           result.Assessment.Scores.Overall,
		Grade:                  result.Assessment.Grade,
	}
	if result.Decision != nil {
		event.Promotion = result.Decision.Outcome()
	}
	m.publish(event)

	c.result = result
	c.finishedAt = now
	close(c.done)

	m.logger.Info("session completed",
		"session_id", s.ID,
		"reason", s.CompletionReason,
		"result", s.Result,
		"accuracy", s.Accuracy,
		"grade", result.Assessment.Grade,
	)
}

func (m *Manager) recentHistory(ctx context.Context, s *training.Session) []*training.Session {
	if m.deps.Sessions == nil {
		return nil
	}
	history, err := m.deps.Sessions.FindRecent(ctx, training.RecentQuery{
		StudentID:  s.StudentID,
		Curriculum: s.Curriculum,
		Level:      s.Level,
		ExcludeID:  s.ID,
		Limit:      m.deps.Evaluator.Window(),
	})
	if err != nil {
		m.logger.Warn("failed to load session history", "session_id", s.ID, "error", err)
		return nil
	}
	return history
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION
// ══════════════════════════════════════════════════════════════════════════════

func (m *Manager) evaluate(ctx context.Context, s *training.Session, history []*training.Session, now time.Time) *promotion.Decision {
	window := m.deps.Evaluator.Window()
	samples := make([]promotion.SessionSample, 0, window)
	samples = append(samples, sampleOf(s))
	for _, h := range history {
		if len(samples) == window {
			break
		}
		if h.ID == s.ID || h.Status != training.StatusCompleted ||
			h.Curriculum != s.Curriculum || h.Level != s.Level {
			continue
		}
		samples = append(samples, sampleOf(h))
	}

	d, err := m.deps.Evaluator.Evaluate(promotion.Request{
		DecisionID: m.deps.NewID(),
		StudentID:  s.StudentID,
		TrainerID:  s.TrainerID,
		SessionID:  s.ID,
		Curriculum: s.Curriculum,
		Level:      s.Level,
		Sessions:   samples,
		Now:        now,
	})
	if err != nil {
		if errors.Is(err, shared.ErrCriteriaNotFound) {
			m.logger.Debug("no promotion criteria", "curriculum", s.Curriculum, "level", s.Level)
		} else {
			m.logger.Error("promotion evaluation failed", "session_id", s.ID, "error", err)
		}
		return nil
	}

	if d.Status == promotion.StatusAutoApproved && !m.deps.Features.Enabled(FeatureAutoApproval, s.StudentID) {
		d.Status = promotion.StatusPending
		d.Reason = "all criteria met, auto-approval disabled"
	}

	if m.deps.Decisions != nil {
		if err := m.deps.Decisions.Save(ctx, d); err != nil {
			m.logger.Error("failed to persist promotion decision", "decision_id", d.ID, "error", err)
		}
	}

	if d.Status == promotion.StatusAutoApproved && m.deps.Executor != nil {
		if err := m.deps.Executor.ExecutePromotion(ctx, promotion.PromotionFrom(d, now)); err != nil {
			m.logger.Error("failed to execute promotion",
				"decision_id", d.ID,
				"student_id", d.StudentID,
				"to_level", d.ToLevel,
				"error", err,
			)
		}
	}

	if d.Eligible {
		m.publish(shared.PromotionDecidedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventPromotionDecided, d.ID, now),
			Recipients: shared.Recipients{StudentID: d.StudentID, TrainerID: d.TrainerID},
			Curriculum: d.Curriculum.String(),
			FromLevel:  d.FromLevel,
			ToLevel:    d.ToLevel,
			Eligible:   d.Eligible,
			Status:     string(d.Status),
			Confidence: d.Confidence,
		})
	}
	return d
}

func sampleOf(s *training.Session) promotion.SessionSample {
	sample := promotion.SessionSample{
		SessionID:   s.ID,
		Accuracy:    s.Accuracy,
		AverageTime: s.AverageTimePerQuestion,
	}
	if s.EndedAt != nil {
		sample.CompletedAt = *s.EndedAt
	}
	return sample
}

// ══════════════════════════════════════════════════════════════════════════════
// CLEANUP & RESTORE
// ══════════════════════════════════════════════════════════════════════════════

// CleanupInactive force-completes every session idle for longer than
// threshold and drops expired completion results. Returns the number of
// sessions completed.
func (m *Manager) CleanupInactive(ctx context.Context, threshold time.Duration) int {
	var pending []*completion

	for _, ls := range m.snapshotLive() {
		ls.mu.Lock()
		now := m.clock.Now()
		if ls.completion == nil && now.Sub(ls.session.LastActivityAt) > threshold {
			pending = append(pending, m.beginCompletionLocked(ls, training.ReasonInactive, now))
		}
		ls.mu.Unlock()
	}

	for _, c := range pending {
		m.finish(ctx, c)
	}
	m.purgeFinished()

	if len(pending) > 0 {
		m.logger.Info("inactive sessions cleaned", "count", len(pending), "threshold", threshold)
	}
	return len(pending)
}

func (m *Manager) purgeFinished() {
	cutoff := m.clock.Now().Add(-m.cfg.CompletedRetention)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.finished {
		if c.isDone() && c.finishedAt.Before(cutoff) {
			delete(m.finished, id)
		}
	}
}

// Restore reloads unfinished sessions after a restart. Active sessions whose
// budget ran out while the process was down complete with reason timeout.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	sessions, err := m.deps.Sessions.FindUnfinished(ctx)
	if err != nil {
		return 0, shared.WrapError("training", "Restore", shared.ErrExternalService, "load unfinished sessions", err)
	}

	restored := 0
	var expired []*completion
	for _, s := range sessions {
		if !s.Status.IsLive() {
			continue
		}
		if err := s.CheckInvariants(); err != nil {
			m.logger.Error("skipping corrupt session", "session_id", s.ID, "error", err)
			continue
		}
		if _, err := m.lookup(s.ID); err == nil {
			continue
		}

		ls := newLiveSession(s)
		ls.mu.Lock()
		m.register(ls)
		now := m.clock.Now()
		switch {
		case s.Status == training.StatusPaused:
			// timers re-arm on Resume
		case s.Remaining(now) == 0 || s.IsExhausted():
			reason := training.ReasonTimeout
			if s.IsExhausted() {
				reason = training.ReasonFinished
			}
			expired = append(expired, m.beginCompletionLocked(ls, reason, now))
		default:
			m.armTimers(ls, now)
		}
		ls.mu.Unlock()
		restored++
	}

	for _, c := range expired {
		m.finish(ctx, c)
	}
	m.logger.Info("sessions restored", "count", restored, "expired", len(expired))
	return restored, nil
}
