package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE
// ══════════════════════════════════════════════════════════════════════════════

// CreateRequest contains the data to start a session.
type CreateRequest struct {
	StudentID   string
	TrainerID   string
	Curriculum  shared.Curriculum
	Level       string
	AgeGroup    shared.AgeGroup
	SessionType shared.SessionType

	// QuestionCount overrides the per-curriculum batch size when positive.
	QuestionCount int

	// Settings overrides the default settings when set.
	Settings *training.Settings

	CustomSettings map[string]string
}

// Validate validates the request.
func (r CreateRequest) Validate(maxExercises int) error {
	var problems []string
	if strings.TrimSpace(r.StudentID) == "" {
		problems = append(problems, "student_id is required")
	}
	if !r.Curriculum.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown curriculum %q", r.Curriculum))
	}
	if r.AgeGroup != "" && !r.AgeGroup.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown age group %q", r.AgeGroup))
	}
	if r.SessionType != "" && !r.SessionType.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown session type %q", r.SessionType))
	}
	if r.QuestionCount < 0 || r.QuestionCount > maxExercises {
		problems = append(problems, fmt.Sprintf("question_count must be between 0 and %d", maxExercises))
	}
	if r.Settings != nil && r.Settings.DurationBudget < 0 {
		problems = append(problems, "duration budget must not be negative")
	}

	if len(problems) > 0 {
		return shared.Errorf("training", "Create", shared.ErrValidation, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Create starts a new session and returns its first exercise.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := req.Validate(m.cfg.MaxExercises); err != nil {
		return nil, err
	}

	student, err := m.deps.Directory.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if req.TrainerID != "" {
		if _, err := m.deps.Directory.GetTrainer(ctx, req.TrainerID); err != nil {
			return nil, err
		}
	}

	level := strings.TrimSpace(req.Level)
	if level == "" {
		level = student.CurrentLevels[req.Curriculum]
	}
	if level == "" {
		return nil, shared.Errorf("training", "Create", shared.ErrValidation,
			"level is required: student has no current level in %s", req.Curriculum)
	}
	age := req.AgeGroup
	if age == "" {
		age = student.AgeGroup
	}
	kind := req.SessionType
	if kind == "" {
		kind = shared.SessionTypePractice
	}

	count := req.QuestionCount
	if count == 0 {
		count = training.ExerciseCount(req.Curriculum, age, kind, level)
	}

	genReq := training.GenerateRequest{
		Curriculum:     req.Curriculum,
		Level:          level,
		AgeGroup:       age,
		SessionType:    kind,
		Count:          count,
		CustomSettings: req.CustomSettings,
	}
	genReq.Adaptive = m.adaptiveHint(ctx, req.StudentID, req.Curriculum)

	batch, err := m.deps.Generator.Generate(ctx, genReq)
	if err != nil {
		return nil, shared.WrapError("training", "Create", shared.ErrExternalService, "generate exercises", errors.Join(shared.ErrGeneratorFailed, err))
	}
	exercises := batch.Exercises
	if len(exercises) > count {
		exercises = exercises[:count]
	}

	settings := training.DefaultSettings()
	settings.DurationBudget = 0
	if req.Settings != nil {
		settings = *req.Settings
	}
	if settings.DurationBudget == 0 {
		settings.DurationBudget = m.cfg.DefaultDuration
	}
	if settings.DurationBudget == 0 {
		settings.DurationBudget = training.DefaultBudget(req.Curriculum, len(exercises))
	}

	now := m.clock.Now()
	session, err := training.NewSession(training.NewSessionParams{
		ID:          m.deps.NewID(),
		StudentID:   req.StudentID,
		TrainerID:   req.TrainerID,
		Curriculum:  req.Curriculum,
		Level:       level,
		AgeGroup:    age,
		SessionType: kind,
		Exercises:   exercises,
		Settings:    settings,
		Difficulty:  batch.Difficulty,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	ls := newLiveSession(session)
	ls.mu.Lock()
	m.register(ls)
	m.armTimers(ls, now)
	result := &CreateResult{
		SessionID:      session.ID,
		TotalExercises: session.Total(),
		Remaining:      session.Remaining(now),
		Exercise:       viewExercise(session),
	}
	eff := effects{persist: ls.snapshot()}
	eff.emit(shared.SessionCreatedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventSessionCreated, session.ID, now),
		Recipients:     recipients(session),
		Curriculum:     session.Curriculum.String(),
		Level:          session.Level,
		TotalExercises: session.Total(),
		DurationBudget: timeutil.Seconds(settings.DurationBudget),
	})
	ls.mu.Unlock()

	m.apply(ctx, eff)
	m.logger.Info("session created",
		"session_id", session.ID,
		"student_id", session.StudentID,
		"curriculum", session.Curriculum,
		"level", session.Level,
		"exercises", session.Total(),
	)
	return result, nil
}

func (m *Manager) adaptiveHint(ctx context.Context, studentID string, c shared.Curriculum) *training.AdaptiveHint {
	if m.deps.Adaptive == nil || !m.deps.Features.Enabled(FeatureAdaptiveGeneration, studentID) {
		return nil
	}
	hint, err := m.deps.Adaptive.Hint(ctx, studentID, c)
	if err != nil {
		m.logger.Warn("adaptive hint unavailable", "student_id", studentID, "error", err)
		return nil
	}
	return hint
}

func recipients(s *training.Session) shared.Recipients {
	return shared.Recipients{StudentID: s.StudentID, TrainerID: s.TrainerID}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXERCISE FLOW
// ══════════════════════════════════════════════════════════════════════════════

// GetCurrentExercise returns the exercise at the current index without
// changing any counter. A completed session whose result is still retained
// reports Completed with no exercise.
func (m *Manager) GetCurrentExercise(id string) (*CurrentExercise, error) {
	var out *CurrentExercise
	err := m.withSession(id, func(ls *liveSession, _ time.Time) error {
		view := viewExercise(ls.session)
		out = &CurrentExercise{Exercise: view, Completed: view == nil, Total: ls.session.Total()}
		return nil
	})
	if errors.Is(err, shared.ErrSessionNotFound) {
		if c, ok := m.finishedEntry(id); ok {
			return &CurrentExercise{Completed: true, Total: c.session.Total()}, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitAnswer validates the answer to the current exercise and advances.
// The last answer completes the session.
func (m *Manager) SubmitAnswer(ctx context.Context, id, answer string, timeSpent float64) (*AnswerResult, error) {
	var (
		out *AnswerResult
		eff effects
		c   *completion
	)
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		s := ls.session
		index := s.CurrentIndex
		ex, err := s.SubmitAnswer(answer, timeSpent, now)
		if err != nil {
			return err
		}

		out = &AnswerResult{
			Correct:       ex.Correct(),
			CorrectAnswer: ex.CorrectAnswer,
			Accuracy:      s.Accuracy,
			Progress:      s.Progress(),
			Next:          viewExercise(s),
		}
		eff.outcomes = append(eff.outcomes, training.NewOutcome(s, ex, now))
		eff.emit(shared.AnswerSubmittedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventAnswerSubmitted, s.ID, now),
			Recipients:    recipients(s),
			ExerciseIndex: index,
			Correct:       out.Correct,
			TimeSpent:     timeSpent,
			Accuracy:      s.Accuracy,
			Progress:      out.Progress,
		})

		if s.IsExhausted() {
			c = m.beginCompletionLocked(ls, training.ReasonFinished, now)
		} else {
			eff.persist = persistOnMutation(ls)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.apply(ctx, eff)
	if c != nil {
		m.finish(ctx, c)
		out.Completed = true
		out.Completion = c.result
	}
	return out, nil
}

// Skip marks the current exercise skipped and advances.
func (m *Manager) Skip(ctx context.Context, id, reason string) (*SkipResult, error) {
	var (
		out *SkipResult
		eff effects
		c   *completion
	)
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		s := ls.session
		index := s.CurrentIndex
		ex, err := s.Skip(reason, now)
		if err != nil {
			return err
		}

		out = &SkipResult{Progress: s.Progress(), Next: viewExercise(s)}
		eff.outcomes = append(eff.outcomes, training.NewOutcome(s, ex, now))
		eff.emit(shared.ExerciseSkippedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventExerciseSkipped, s.ID, now),
			Recipients:    recipients(s),
			ExerciseIndex: index,
			Reason:        reason,
			Progress:      out.Progress,
		})

		if s.IsExhausted() {
			c = m.beginCompletionLocked(ls, training.ReasonFinished, now)
		} else {
			eff.persist = persistOnMutation(ls)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.apply(ctx, eff)
	if c != nil {
		m.finish(ctx, c)
		out.Completed = true
		out.Completion = c.result
	}
	return out, nil
}

// RequestHint reveals a hint of the current exercise.
func (m *Manager) RequestHint(ctx context.Context, id string, hintIndex int) (*HintResult, error) {
	var (
		out *HintResult
		eff effects
	)
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		s := ls.session
		hint, more, err := s.RequestHint(hintIndex, now)
		if err != nil {
			return err
		}
		ex, _ := s.CurrentExercise()

		out = &HintResult{Hint: hint, HasMore: more, HintsUsed: ex.HintsUsed}
		eff.persist = persistOnMutation(ls)
		eff.emit(shared.HintProvidedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventHintProvided, s.ID, now),
			Recipients:    recipients(s),
			ExerciseIndex: s.CurrentIndex,
			HintIndex:     hintIndex,
			HasMore:       more,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.apply(ctx, eff)
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAUSE / RESUME
// ══════════════════════════════════════════════════════════════════════════════

// Pause freezes the session clock and cancels both timers.
func (m *Manager) Pause(ctx context.Context, id, reason string) (*StatusView, error) {
	var (
		out StatusView
		eff effects
	)
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		s := ls.session
		if err := s.Pause(reason, now); err != nil {
			return err
		}
		ls.stopTimers()

		out = viewStatus(s, now)
		eff.persist = ls.snapshot()
		eff.emit(shared.SessionPausedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventSessionPaused, s.ID, now),
			Recipients: recipients(s),
			Reason:     reason,
			Remaining:  timeutil.Seconds(out.Remaining),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.apply(ctx, eff)
	return &out, nil
}

// Resume adds the pause to the pause offset and re-arms both timers
// with the recomputed remaining time.
func (m *Manager) Resume(ctx context.Context, id string) (*StatusView, error) {
	var (
		out StatusView
		eff effects
	)
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		s := ls.session
		pausedFor, err := s.Resume(now)
		if err != nil {
			return err
		}
		m.armTimers(ls, now)

		out = viewStatus(s, now)
		eff.persist = ls.snapshot()
		eff.emit(shared.SessionResumedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventSessionResumed, s.ID, now),
			Recipients: recipients(s),
			PausedFor:  timeutil.Seconds(pausedFor),
			Remaining:  timeutil.Seconds(out.Remaining),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.apply(ctx, eff)
	return &out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetStatus returns progress, counters and remaining time. Completed sessions
// stay visible while their result is retained.
func (m *Manager) GetStatus(id string) (*StatusView, error) {
	var out StatusView
	err := m.withSession(id, func(ls *liveSession, now time.Time) error {
		out = viewStatus(ls.session, now)
		return nil
	})
	if errors.Is(err, shared.ErrSessionNotFound) {
		if c, ok := m.finishedEntry(id); ok {
			out = viewStatus(c.session, m.clock.Now())
			return &out, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActive returns every tracked session, oldest first.
func (m *Manager) ListActive() []StatusView {
	now := m.clock.Now()
	entries := m.snapshotLive()
	views := make([]StatusView, 0, len(entries))
	for _, ls := range entries {
		ls.mu.Lock()
		if ls.completion == nil {
			views = append(views, viewStatus(ls.session, now))
		}
		ls.mu.Unlock()
	}
	sortByStart(views)
	return views
}
