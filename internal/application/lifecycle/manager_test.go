package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	m         *Manager
	clock     *timeutil.ManualClock
	gen       *fakeGenerator
	sessions  *fakeSessions
	adaptive  *fakeAdaptive
	decisions *fakeDecisions
	executor  *fakeExecutor
	pub       *recordingPublisher
}

func newHarness(t *testing.T, tweak ...func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		clock:     timeutil.NewManualClock(start),
		gen:       &fakeGenerator{},
		sessions:  newFakeSessions(),
		adaptive:  &fakeAdaptive{},
		decisions: &fakeDecisions{},
		executor:  &fakeExecutor{},
		pub:       &recordingPublisher{},
	}

	var mu sync.Mutex
	seq := 0
	deps := Dependencies{
		Generator: h.gen,
		Sessions:  h.sessions,
		Directory: newFakeDirectory(),
		Adaptive:  h.adaptive,
		Decisions: h.decisions,
		Executor:  h.executor,
		Publisher: h.pub,
		Clock:     h.clock,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range tweak {
		fn(&deps)
	}

	h.m = NewManager(deps, Config{
		AutoSaveInterval:   30 * time.Second,
		CompletedRetention: 10 * time.Minute,
	})
	t.Cleanup(h.m.Close)
	return h
}

func hourLong() *training.Settings {
	return &training.Settings{AllowHints: true, AllowSkip: true, AutoSave: true, DurationBudget: time.Hour}
}

func (h *harness) create(t *testing.T, count int, settings *training.Settings) string {
	t.Helper()
	res, err := h.m.Create(context.Background(), CreateRequest{
		StudentID:     "student-1",
		TrainerID:     "trainer-1",
		Curriculum:    shared.CurriculumAbacus,
		QuestionCount: count,
		Settings:      settings,
	})
	require.NoError(t, err)
	return res.SessionID
}

func (h *harness) status(t *testing.T, id string) *StatusView {
	t.Helper()
	st, err := h.m.GetStatus(id)
	require.NoError(t, err)
	return st
}

func assertInvariants(t *testing.T, st *StatusView) {
	t.Helper()
	assert.Equal(t, st.CurrentIndex, st.CorrectAnswers+st.IncorrectAnswers+st.SkippedQuestions)
	assert.Equal(t, shared.Percent(st.CorrectAnswers, st.CorrectAnswers+st.IncorrectAnswers), st.Accuracy)
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

func TestCreate_UsesDirectoryAndSizingTable(t *testing.T) {
	h := newHarness(t)

	res, err := h.m.Create(context.Background(), CreateRequest{
		StudentID:  "student-1",
		Curriculum: shared.CurriculumAbacus,
	})
	require.NoError(t, err)

	req := h.gen.lastRequest()
	assert.Equal(t, "level-1", req.Level)
	assert.Equal(t, shared.AgeGroupJunior, req.AgeGroup)
	assert.Equal(t, shared.SessionTypePractice, req.SessionType)
	assert.Equal(t, 15, req.Count)

	assert.Equal(t, 15, res.TotalExercises)
	assert.Equal(t, 300*time.Second, res.Remaining)
	require.NotNil(t, res.Exercise)
	assert.Equal(t, 0, res.Exercise.Index)
	assert.Equal(t, 1, res.Exercise.HintCount)

	assert.Equal(t, 1, h.m.ActiveCount())
	assert.Len(t, h.pub.ofType(shared.EventSessionCreated), 1)
	require.NotNil(t, h.sessions.get(res.SessionID))
	assert.Equal(t, 2, h.clock.PendingTimers(), "auto-save and timeout armed")
}

func TestCreate_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.Create(ctx, CreateRequest{StudentID: "ghost", Curriculum: shared.CurriculumAbacus})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = h.m.Create(ctx, CreateRequest{StudentID: "student-1", TrainerID: "ghost", Curriculum: shared.CurriculumAbacus})
	assert.ErrorIs(t, err, shared.ErrTrainerNotFound)

	_, err = h.m.Create(ctx, CreateRequest{Curriculum: "chess"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.m.Create(ctx, CreateRequest{StudentID: "student-2", Curriculum: shared.CurriculumVedic})
	assert.True(t, shared.IsValidation(err), "student has no current vedic level")

	h.gen.err = errBoom
	_, err = h.m.Create(ctx, CreateRequest{StudentID: "student-1", Curriculum: shared.CurriculumAbacus})
	assert.True(t, shared.IsExternalService(err))
	assert.ErrorIs(t, err, shared.ErrGeneratorFailed)
	assert.ErrorIs(t, err, errBoom)

	assert.Zero(t, h.m.ActiveCount())
}

func TestCreate_PassesAdaptiveHint(t *testing.T) {
	h := newHarness(t)
	h.adaptive.hint = &training.AdaptiveHint{RecentAccuracy: 72, WeakTypes: []string{"subtraction"}}

	h.create(t, 3, nil)
	assert.Equal(t, h.adaptive.hint, h.gen.lastRequest().Adaptive)

	off := newHarness(t, func(d *Dependencies) { d.Features = featureOff{FeatureAdaptiveGeneration: true} })
	off.adaptive.hint = h.adaptive.hint
	off.create(t, 3, nil)
	assert.Nil(t, off.gen.lastRequest().Adaptive)
}

// ─────────────────────────────────────────────────────────────────────────────
// Exercise flow
// ─────────────────────────────────────────────────────────────────────────────

func TestScenario_NineCorrectOneSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 10, hourLong())

	for i := 0; i < 9; i++ {
		res, err := h.m.SubmitAnswer(ctx, id, "1", 3.0)
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.False(t, res.Completed)
		assertInvariants(t, h.status(t, id))
	}

	cur, err := h.m.GetCurrentExercise(id)
	require.NoError(t, err)
	assert.Equal(t, 9, cur.Exercise.Index)
	assert.Equal(t, 9, h.status(t, id).CurrentIndex, "reading the exercise does not advance")

	res, err := h.m.Skip(ctx, id, "did not know")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.NotNil(t, res.Completion)

	final := res.Completion.Session
	assert.Equal(t, training.StatusCompleted, final.Status)
	assert.Equal(t, 100.0, final.Accuracy)
	assert.Equal(t, 90.0, final.CompletionRate)
	assert.Equal(t, 3.0, final.AverageTimePerQuestion)
	assert.Equal(t, training.ResultGood, final.Result)
	assert.Equal(t, training.ReasonFinished, final.CompletionReason)
	assert.Equal(t, 9, final.CorrectAnswers)
	assert.Equal(t, 1, final.SkippedQuestions)

	assert.Zero(t, h.m.ActiveCount())
	assert.Zero(t, h.clock.PendingTimers())

	_, err = h.m.SubmitAnswer(ctx, id, "1", 1)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	completed := h.pub.ofType(shared.EventSessionCompleted)
	require.Len(t, completed, 1)
	ev := completed[0].(shared.SessionCompletedEvent)
	assert.Equal(t, "good", ev.Result)
	assert.Equal(t, "trainer-1", ev.TrainerID)
	require.NotNil(t, ev.Promotion)
	assert.False(t, ev.Promotion.Eligible)

	assert.Len(t, h.pub.ofType(shared.EventAnswerSubmitted), 9)
	assert.Len(t, h.pub.ofType(shared.EventExerciseSkipped), 1)
	assert.Empty(t, h.pub.ofType(shared.EventPromotionDecided))
	assert.Len(t, h.adaptive.outcomes, 10)

	stored := h.sessions.get(id)
	require.NotNil(t, stored)
	assert.Equal(t, training.StatusCompleted, stored.Status)
}

func TestSubmitAnswer_IncorrectUpdatesAccuracy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 4, hourLong())

	_, err := h.m.SubmitAnswer(ctx, id, "1", 2)
	require.NoError(t, err)
	res, err := h.m.SubmitAnswer(ctx, id, "7", 4)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, "1", res.CorrectAnswer)
	assert.Equal(t, 50.0, res.Accuracy)
	assert.Equal(t, 50.0, res.Progress)

	_, err = h.m.Skip(ctx, id, "")
	require.NoError(t, err)

	st := h.status(t, id)
	assertInvariants(t, st)
	assert.Equal(t, 50.0, st.Accuracy)
	assert.Equal(t, 3.0, st.AverageTimePerQuestion)
}

func TestPolicyViolations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	strict := &training.Settings{DurationBudget: time.Hour}
	id := h.create(t, 3, strict)

	_, err := h.m.Skip(ctx, id, "")
	assert.ErrorIs(t, err, shared.ErrSkipDisabled)
	assert.True(t, shared.IsPolicyViolation(err))

	_, err = h.m.RequestHint(ctx, id, 0)
	assert.ErrorIs(t, err, shared.ErrHintsDisabled)

	relaxed := h.create(t, 3, hourLong())
	_, err = h.m.RequestHint(ctx, relaxed, 4)
	assert.ErrorIs(t, err, shared.ErrHintOutOfRange)

	hint, err := h.m.RequestHint(ctx, relaxed, 0)
	require.NoError(t, err)
	assert.Equal(t, "look at the last digit", hint.Hint)
	assert.False(t, hint.HasMore)
	assert.Equal(t, 1, hint.HintsUsed)
	assert.Len(t, h.pub.ofType(shared.EventHintProvided), 1)

	assert.Equal(t, 0, h.status(t, id).SkippedQuestions)
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.GetCurrentExercise("missing")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.SubmitAnswer(ctx, "missing", "1", 1)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.Skip(ctx, "missing", "")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.RequestHint(ctx, "missing", 0)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.Pause(ctx, "missing", "")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.Resume(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.Complete(ctx, "missing", "")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = h.m.GetStatus("missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestSideEffectFailuresDoNotRollBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 3, hourLong())

	h.pub.err = errBoom
	h.sessions.saveErr = errBoom

	_, err := h.m.SubmitAnswer(ctx, id, "1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.status(t, id).CurrentIndex)
}

// ─────────────────────────────────────────────────────────────────────────────
// Pause, resume and timers
// ─────────────────────────────────────────────────────────────────────────────

func TestPauseResume_KeepsRemainingTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 5, &training.Settings{AllowSkip: true, AutoSave: true, DurationBudget: 10 * time.Minute})

	h.clock.Advance(time.Minute)
	before := h.status(t, id).Remaining
	assert.Equal(t, 9*time.Minute, before)

	paused, err := h.m.Pause(ctx, id, "break")
	require.NoError(t, err)
	assert.Equal(t, training.StatusPaused, paused.Status)
	assert.Zero(t, h.clock.PendingTimers())

	_, err = h.m.Pause(ctx, id, "again")
	assert.ErrorIs(t, err, shared.ErrSessionPaused)
	_, err = h.m.SubmitAnswer(ctx, id, "1", 1)
	assert.ErrorIs(t, err, shared.ErrSessionIsPaused)

	h.clock.Advance(120 * time.Second)

	resumed, err := h.m.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, resumed.PauseOffset)
	assert.Equal(t, before, resumed.Remaining)
	assert.Equal(t, 2, h.clock.PendingTimers())

	_, err = h.m.Resume(ctx, id)
	assert.ErrorIs(t, err, shared.ErrSessionNotPaused)

	resumedEvents := h.pub.ofType(shared.EventSessionResumed)
	require.Len(t, resumedEvents, 1)
	assert.Equal(t, 120.0, resumedEvents[0].(shared.SessionResumedEvent).PausedFor)

	h.clock.Advance(before - time.Second)
	assert.Equal(t, training.StatusActive, h.status(t, id).Status)

	h.clock.Advance(time.Second)
	st := h.status(t, id)
	assert.Equal(t, training.StatusCompleted, st.Status)
	assert.Equal(t, training.ReasonTimeout, h.sessions.get(id).CompletionReason)
}

func TestTimeout_CompletesSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, 5, &training.Settings{AutoSave: true, DurationBudget: time.Minute})
	saves := h.sessions.saveCount()

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, saves+1, h.sessions.saveCount(), "auto-save fired")

	h.clock.Advance(30 * time.Second)
	assert.Zero(t, h.m.ActiveCount())
	assert.Zero(t, h.clock.PendingTimers())

	res, err := h.m.Complete(context.Background(), id, training.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, training.ReasonTimeout, res.Session.CompletionReason)
	assert.Equal(t, training.ResultPoor, res.Session.Result)
	assert.Len(t, h.pub.ofType(shared.EventSessionCompleted), 1)
}

func TestTimersStayQuietWhilePaused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 5, &training.Settings{AutoSave: true, DurationBudget: time.Minute})

	_, err := h.m.Pause(ctx, id, "")
	require.NoError(t, err)
	saves := h.sessions.saveCount()

	h.clock.Advance(2 * time.Hour)
	assert.Equal(t, training.StatusPaused, h.status(t, id).Status)
	assert.Equal(t, saves, h.sessions.saveCount())
}

func TestStaleTimerCallbackIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 5, hourLong())

	ls, err := h.m.lookup(id)
	require.NoError(t, err)
	ls.mu.Lock()
	staleGen := ls.gen
	ls.mu.Unlock()

	_, err = h.m.Pause(ctx, id, "")
	require.NoError(t, err)
	_, err = h.m.Resume(ctx, id)
	require.NoError(t, err)

	saves := h.sessions.saveCount()
	h.m.onTimeout(id, staleGen)
	h.m.onAutoSave(id, staleGen)

	assert.Equal(t, training.StatusActive, h.status(t, id).Status)
	assert.Equal(t, saves, h.sessions.saveCount())

	_, err = h.m.Complete(ctx, id, "")
	require.NoError(t, err)
	h.m.onTimeout(id, staleGen+1)
	assert.Len(t, h.pub.ofType(shared.EventSessionCompleted), 1)
}

func TestAutoSaveDisabled(t *testing.T) {
	h := newHarness(t)
	h.create(t, 5, &training.Settings{DurationBudget: time.Hour})
	assert.Equal(t, 1, h.clock.PendingTimers(), "only the timeout timer")
}

// ─────────────────────────────────────────────────────────────────────────────
// Complete
// ─────────────────────────────────────────────────────────────────────────────

func TestComplete_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 5, hourLong())

	_, err := h.m.SubmitAnswer(ctx, id, "1", 2)
	require.NoError(t, err)
	_, err = h.m.SubmitAnswer(ctx, id, "3", 2)
	require.NoError(t, err)

	first, err := h.m.Complete(ctx, id, training.ReasonManual)
	require.NoError(t, err)
	second, err := h.m.Complete(ctx, id, training.ReasonTimeout)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, second.Session.CorrectAnswers)
	assert.Equal(t, 1, second.Session.IncorrectAnswers)
	assert.Equal(t, training.ReasonManual, second.Session.CompletionReason)
	assert.Equal(t, 40.0, second.Session.CompletionRate)
	assert.Len(t, h.pub.ofType(shared.EventSessionCompleted), 1)
	assert.Len(t, h.decisions.saved, 1)
}

func TestComplete_ConcurrentCallersShareResult(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, 5, hourLong())

	const callers = 8
	results := make([]*CompletionResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.m.Complete(context.Background(), id, "")
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Same(t, results[0], r)
	}
	assert.Len(t, h.pub.ofType(shared.EventSessionCompleted), 1)
}

func TestComplete_FromPaused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 5, hourLong())

	_, err := h.m.Pause(ctx, id, "")
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)

	res, err := h.m.Complete(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, training.StatusCompleted, res.Session.Status)
	assert.Equal(t, 5*time.Minute, res.Session.PauseOffset)
}

func TestGetCurrentExercise_AfterCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 2, hourLong())

	for i := 0; i < 2; i++ {
		_, err := h.m.SubmitAnswer(ctx, id, "1", 1)
		require.NoError(t, err)
	}

	cur, err := h.m.GetCurrentExercise(id)
	require.NoError(t, err)
	assert.True(t, cur.Completed)
	assert.Nil(t, cur.Exercise)
	assert.Equal(t, 2, cur.Total)

	h.clock.Advance(11 * time.Minute)
	h.m.CleanupInactive(ctx, time.Hour)
	_, err = h.m.GetCurrentExercise(id)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound, "expired results are gone")
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence ordering
// ─────────────────────────────────────────────────────────────────────────────

func TestAutoSaveInFlightDoesNotOverwriteCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 2, hourLong())
	_, err := h.m.SubmitAnswer(ctx, id, "1", 1)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.sessions.beforeSave = func(s *training.Session) {
		if s.Status != training.StatusActive {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		h.clock.Advance(30 * time.Second)
	}()
	<-entered

	answered := make(chan error, 1)
	go func() {
		_, err := h.m.SubmitAnswer(ctx, id, "1", 1)
		answered <- err
	}()
	require.Eventually(t, func() bool {
		st, err := h.m.GetStatus(id)
		return err == nil && st.Status == training.StatusCompleted
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-answered)
	<-ticked

	stored := h.sessions.get(id)
	require.NotNil(t, stored)
	assert.Equal(t, training.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.CurrentIndex)
}

func TestPersist_DropsSnapshotOlderThanLastWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, 3, hourLong())

	ls, err := h.m.lookup(id)
	require.NoError(t, err)
	ls.mu.Lock()
	early := ls.snapshot()
	ls.mu.Unlock()

	_, err = h.m.SubmitAnswer(ctx, id, "1", 1)
	require.NoError(t, err)
	saves := h.sessions.saveCount()

	h.m.persist(ctx, early)

	assert.Equal(t, saves, h.sessions.saveCount())
	assert.Equal(t, 1, h.sessions.get(id).CurrentIndex)
}

// ─────────────────────────────────────────────────────────────────────────────
// Promotion
// ─────────────────────────────────────────────────────────────────────────────

func seedHistory(h *harness, n int) {
	for i := 0; i < n; i++ {
		ended := start.Add(-time.Duration(i+1) * time.Hour)
		h.sessions.history = append(h.sessions.history, &training.Session{
			ID:                     fmt.Sprintf("past-%d", i),
			StudentID:              "student-1",
			Curriculum:             shared.CurriculumAbacus,
			Level:                  "level-1",
			Status:                 training.StatusCompleted,
			Accuracy:               100,
			AverageTimePerQuestion: 2,
			EndedAt:                &ended,
		})
	}
}

func finishPerfectly(t *testing.T, h *harness, id string, n int) *CompletionResult {
	t.Helper()
	var last *AnswerResult
	for i := 0; i < n; i++ {
		res, err := h.m.SubmitAnswer(context.Background(), id, "1", 2)
		require.NoError(t, err)
		last = res
	}
	require.True(t, last.Completed)
	return last.Completion
}

func TestCompletion_AutoApprovesPromotion(t *testing.T) {
	h := newHarness(t)
	seedHistory(h, 9)
	id := h.create(t, 5, hourLong())

	res := finishPerfectly(t, h, id, 5)

	require.NotNil(t, res.Decision)
	assert.True(t, res.Decision.Eligible)
	assert.Equal(t, promotion.StatusAutoApproved, res.Decision.Status)
	assert.Equal(t, "level-2", res.Decision.ToLevel)
	assert.Equal(t, 10, res.Decision.Metrics.SessionsConsidered)
	require.NotNil(t, res.Assessment.Comparison)

	require.Len(t, h.executor.executed, 1)
	assert.Equal(t, "level-2", h.executor.executed[0].ToLevel)
	assert.Len(t, h.decisions.saved, 1)
	assert.Len(t, h.pub.ofType(shared.EventPromotionDecided), 1)

	ev := h.pub.ofType(shared.EventSessionCompleted)[0].(shared.SessionCompletedEvent)
	require.NotNil(t, ev.Promotion)
	assert.Equal(t, string(promotion.StatusAutoApproved), ev.Promotion.Status)
	assert.Equal(t, "level-2", ev.Promotion.NextLevel)
}

func TestCompletion_AutoApprovalDisabledLeavesPending(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Features = featureOff{FeatureAutoApproval: true} })
	seedHistory(h, 9)
	id := h.create(t, 5, hourLong())

	res := finishPerfectly(t, h, id, 5)

	require.NotNil(t, res.Decision)
	assert.Equal(t, promotion.StatusPending, res.Decision.Status)
	assert.Empty(t, h.executor.executed)
}

func TestCompletion_AdaptiveFeedDisabled(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Features = featureOff{FeatureAdaptiveFeed: true} })
	id := h.create(t, 3, hourLong())
	finishPerfectly(t, h, id, 3)
	assert.Empty(t, h.adaptive.outcomes)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cleanup, listing and restore
// ─────────────────────────────────────────────────────────────────────────────

func TestCleanupInactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	idle := h.create(t, 5, hourLong())
	busy := h.create(t, 5, hourLong())

	h.clock.Advance(6 * time.Minute)
	_, err := h.m.SubmitAnswer(ctx, busy, "1", 2)
	require.NoError(t, err)
	h.clock.Advance(4 * time.Minute)

	assert.Equal(t, 1, h.m.CleanupInactive(ctx, 5*time.Minute))

	active := h.m.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, busy, active[0].SessionID)
	assert.Equal(t, training.ReasonInactive, h.sessions.get(idle).CompletionReason)

	st, err := h.m.GetStatus(idle)
	require.NoError(t, err)
	assert.Equal(t, training.StatusCompleted, st.Status)

	h.clock.Advance(11 * time.Minute)
	assert.Zero(t, h.m.CleanupInactive(ctx, time.Hour))

	_, err = h.m.Complete(ctx, idle, "")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound, "retention expired")
}

func TestListActive_OrderedByStart(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, 3, hourLong())
	h.clock.Advance(time.Second)
	second := h.create(t, 3, hourLong())

	_, err := h.m.Pause(context.Background(), second, "")
	require.NoError(t, err)

	views := h.m.ListActive()
	require.Len(t, views, 2)
	assert.Equal(t, first, views[0].SessionID)
	assert.Equal(t, second, views[1].SessionID)
	assert.Equal(t, training.StatusPaused, views[1].Status)
}

func restoredSession(t *testing.T, id string, startedAgo time.Duration) *training.Session {
	t.Helper()
	s, err := training.NewSession(training.NewSessionParams{
		ID:         id,
		StudentID:  "student-1",
		Curriculum: shared.CurriculumAbacus,
		Level:      "level-1",
		Exercises: []*training.Exercise{
			{ID: "a", CorrectAnswer: "1", AnswerType: training.AnswerNumeric},
			{ID: "b", CorrectAnswer: "1", AnswerType: training.AnswerNumeric},
		},
		Settings: training.Settings{AutoSave: true, DurationBudget: 10 * time.Minute},
		Now:      start.Add(-startedAgo),
	})
	require.NoError(t, err)
	return s
}

func TestRestore(t *testing.T) {
	h := newHarness(t)

	running := restoredSession(t, "running", 2*time.Minute)
	expired := restoredSession(t, "expired", 20*time.Minute)
	paused := restoredSession(t, "paused", 5*time.Minute)
	require.NoError(t, paused.Pause("", start.Add(-4*time.Minute)))
	h.sessions.unfinished = []*training.Session{running, expired, paused}

	n, err := h.m.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, h.m.ListActive(), 2)
	assert.Equal(t, training.ReasonTimeout, h.sessions.get("expired").CompletionReason)

	assert.Equal(t, 8*time.Minute, h.status(t, "running").Remaining)
	assert.Equal(t, 9*time.Minute, h.status(t, "paused").Remaining)

	h.clock.Advance(8 * time.Minute)
	assert.Equal(t, training.StatusCompleted, h.status(t, "running").Status)
	assert.Equal(t, training.StatusPaused, h.status(t, "paused").Status)
}
