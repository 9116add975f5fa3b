package training

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func numericExercises(n int) []*Exercise {
	out := make([]*Exercise, n)
	for i := range out {
		out[i] = &Exercise{
			ID:            fmt.Sprintf("ex-%d", i),
			Type:          "addition",
			Question:      fmt.Sprintf("%d + %d", i, i),
			CorrectAnswer: fmt.Sprintf("%d", 2*i),
			AnswerType:    AnswerNumeric,
			Hints:         []string{"add the ones", "double it"},
		}
	}
	return out
}

func newTestSession(t *testing.T, n int) *Session {
	t.Helper()
	s, err := NewSession(NewSessionParams{
		ID:         "s-1",
		StudentID:  "st-1",
		Curriculum: shared.CurriculumAbacus,
		Level:      "level-1",
		Exercises:  numericExercises(n),
		Settings:   DefaultSettings(),
		Now:        t0,
	})
	require.NoError(t, err)
	return s
}

func assertCounters(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.CheckInvariants())
	assert.Equal(t, shared.Percent(s.CorrectAnswers, s.CorrectAnswers+s.IncorrectAnswers), s.Accuracy)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(NewSessionParams{Curriculum: "chess", Now: t0})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Contains(t, err.Error(), "unknown curriculum")
	assert.Contains(t, err.Error(), "at least one exercise")
}

func TestSession_SubmitAndSkip_KeepInvariants(t *testing.T) {
	s := newTestSession(t, 4)
	now := t0

	_, err := s.SubmitAnswer("0", 2, now)
	require.NoError(t, err)
	assertCounters(t, s)

	_, err = s.SubmitAnswer("99", 4, now)
	require.NoError(t, err)
	assertCounters(t, s)
	assert.Equal(t, 50.0, s.Accuracy)
	assert.Equal(t, 3.0, s.AverageTimePerQuestion)

	ex, err := s.Skip("too hard", now)
	require.NoError(t, err)
	assert.True(t, ex.IsSkipped)
	assertCounters(t, s)
	assert.Equal(t, 50.0, s.Accuracy, "skips are excluded from accuracy")

	_, err = s.SubmitAnswer("6", 1, now)
	require.NoError(t, err)
	assertCounters(t, s)
	assert.True(t, s.IsExhausted())

	_, err = s.SubmitAnswer("8", 1, now)
	assert.ErrorIs(t, err, shared.ErrNoRemainingExercise)
	assert.True(t, shared.IsInvalidState(err))
}

func TestSession_NegativeTimeRejected(t *testing.T) {
	s := newTestSession(t, 2)
	_, err := s.SubmitAnswer("0", -1, t0)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 0, s.CurrentIndex)
}

func TestSession_SkipDisabled(t *testing.T) {
	s := newTestSession(t, 2)
	s.Settings.AllowSkip = false

	_, err := s.Skip("", t0)
	assert.ErrorIs(t, err, shared.ErrSkipDisabled)
	assert.True(t, shared.IsPolicyViolation(err))
	assert.Equal(t, 0, s.SkippedQuestions)
}

func TestSession_RequestHint(t *testing.T) {
	s := newTestSession(t, 2)

	hint, more, err := s.RequestHint(0, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "add the ones", hint)
	assert.True(t, more)

	hint, more, err = s.RequestHint(1, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "double it", hint)
	assert.False(t, more)

	ex, _ := s.CurrentExercise()
	assert.Equal(t, 2, ex.HintsUsed)
	require.Len(t, ex.HintLog, 2)
	assert.Equal(t, t0.Add(2*time.Second), ex.HintLog[1].At)

	_, _, err = s.RequestHint(2, t0)
	assert.ErrorIs(t, err, shared.ErrHintOutOfRange)

	ex.Hints = nil
	_, _, err = s.RequestHint(0, t0)
	assert.ErrorIs(t, err, shared.ErrNoHints)

	s.Settings.AllowHints = false
	_, _, err = s.RequestHint(0, t0)
	assert.ErrorIs(t, err, shared.ErrHintsDisabled)
}

func TestSession_PauseResume_PreservesRemaining(t *testing.T) {
	s := newTestSession(t, 3)
	s.Settings.DurationBudget = 5 * time.Minute

	pauseAt := t0.Add(90 * time.Second)
	before := s.Remaining(pauseAt)
	require.NoError(t, s.Pause("phone call", pauseAt))

	assert.ErrorIs(t, s.Pause("again", pauseAt), shared.ErrSessionPaused)
	_, err := s.SubmitAnswer("0", 1, pauseAt)
	assert.ErrorIs(t, err, shared.ErrSessionIsPaused)
	assert.Equal(t, before, s.Remaining(pauseAt.Add(time.Hour)), "clock is frozen while paused")

	pausedFor, err := s.Resume(pauseAt.Add(120 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, pausedFor)
	assert.Equal(t, 120*time.Second, s.PauseOffset)
	assert.Equal(t, before, s.Remaining(pauseAt.Add(120*time.Second)))

	_, err = s.Resume(pauseAt.Add(121 * time.Second))
	assert.ErrorIs(t, err, shared.ErrSessionNotPaused)
}

func TestSession_Complete_Idempotent(t *testing.T) {
	s := newTestSession(t, 10)
	now := t0
	for i := 0; i < 9; i++ {
		_, err := s.SubmitAnswer(fmt.Sprintf("%d", 2*i), 3, now)
		require.NoError(t, err)
	}
	_, err := s.Skip("ran out of ideas", now)
	require.NoError(t, err)

	assert.True(t, s.Complete(ReasonFinished, now))
	assert.Equal(t, 100.0, s.Accuracy)
	assert.Equal(t, 90.0, s.CompletionRate)
	assert.Equal(t, 3.0, s.AverageTimePerQuestion)
	assert.Equal(t, ResultGood, s.Result)

	snapshot := s.Clone()
	assert.False(t, s.Complete(ReasonTimeout, now.Add(time.Minute)))
	assert.Equal(t, snapshot, s)

	_, err = s.Skip("", now)
	assert.ErrorIs(t, err, shared.ErrSessionNotActive)
	assert.ErrorIs(t, s.Pause("", now), shared.ErrSessionNotActive)
}

func TestSession_CompleteFromPaused_ClosesPause(t *testing.T) {
	s := newTestSession(t, 2)
	require.NoError(t, s.Pause("", t0.Add(time.Minute)))

	assert.True(t, s.Complete(ReasonInactive, t0.Add(3*time.Minute)))
	assert.Nil(t, s.PausedAt)
	assert.Equal(t, 2*time.Minute, s.PauseOffset)
	assert.Equal(t, time.Minute, s.ActiveElapsed(t0.Add(time.Hour)))
	assert.Equal(t, ResultPoor, s.Result)
}

func TestSession_Annotate(t *testing.T) {
	s := newTestSession(t, 1)
	assert.ErrorIs(t, s.Annotate("nice", t0), shared.ErrSessionNotCompleted)

	s.Complete(ReasonManual, t0)
	require.NoError(t, s.Annotate("  keep practising carries ", t0.Add(time.Hour)))
	assert.Equal(t, "keep practising carries", s.TrainerNotes)
	require.NotNil(t, s.AnnotatedAt)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := newTestSession(t, 2)
	c := s.Clone()
	_, err := c.SubmitAnswer("0", 1, t0)
	require.NoError(t, err)

	assert.Equal(t, 0, s.CurrentIndex)
	assert.False(t, s.Exercises[0].IsAnswered)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		accuracy, completion float64
		want                 ResultClass
	}{
		{100, 100, ResultExcellent},
		{90, 95, ResultExcellent},
		{100, 90, ResultGood},
		{85, 85, ResultGood},
		{75, 100, ResultSatisfactory},
		{65, 65, ResultNeedsImprovement},
		{100, 50, ResultPoor},
		{59, 100, ResultPoor},
		{80, 81, ResultGood},
		{80, 80, ResultSatisfactory},
		{90, 90.5, ResultExcellent},
		{60, 60, ResultPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.accuracy, tt.completion), "acc=%v completion=%v", tt.accuracy, tt.completion)
	}
}

func TestExerciseCount(t *testing.T) {
	assert.Equal(t, 15, ExerciseCount(shared.CurriculumAbacus, shared.AgeGroupJunior, shared.SessionTypePractice, "level-3"))
	assert.Equal(t, 22, ExerciseCount(shared.CurriculumAbacus, shared.AgeGroupJunior, shared.SessionTypeAssessment, "level-3"))
	assert.Equal(t, 4, ExerciseCount(shared.CurriculumLogic, shared.AgeGroupJunior, shared.SessionTypeWarmup, "beginner"))
	assert.Equal(t, 24, ExerciseCount(shared.CurriculumAbacus, shared.AgeGroupAdult, shared.SessionTypePractice, "grand-master"))
	assert.Equal(t, 15, ExerciseCount(shared.CurriculumAbacus, "", shared.SessionTypePractice, "level-1"))
	assert.Equal(t, 300*time.Second, DefaultBudget(shared.CurriculumAbacus, 15))
}
