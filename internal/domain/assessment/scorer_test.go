package assessment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type step struct {
	typ     string
	correct bool
	skip    bool
	seconds float64
}

func buildSession(t *testing.T, id string, steps []step) *training.Session {
	t.Helper()
	exercises := make([]*training.Exercise, len(steps))
	for i, st := range steps {
		exercises[i] = &training.Exercise{
			ID:            fmt.Sprintf("%s-%d", id, i),
			Type:          st.typ,
			CorrectAnswer: "1",
			AnswerType:    training.AnswerNumeric,
		}
	}
	s, err := training.NewSession(training.NewSessionParams{
		ID:         id,
		StudentID:  "student-1",
		Curriculum: shared.CurriculumAbacus,
		Level:      "level-2",
		Exercises:  exercises,
		Settings:   training.DefaultSettings(),
		Now:        now,
	})
	require.NoError(t, err)

	for _, st := range steps {
		if st.skip {
			_, err = s.Skip("", now)
		} else {
			answer := "0"
			if st.correct {
				answer = "1"
			}
			_, err = s.SubmitAnswer(answer, st.seconds, now)
		}
		require.NoError(t, err)
	}
	s.Complete(training.ReasonFinished, now)
	return s
}

func repeat(n int, st step) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = st
	}
	return out
}

func historic(id string, accuracy, avgTime float64) *training.Session {
	return &training.Session{
		ID:                     id,
		Curriculum:             shared.CurriculumAbacus,
		Level:                  "level-2",
		Status:                 training.StatusCompleted,
		Accuracy:               accuracy,
		AverageTimePerQuestion: avgTime,
	}
}

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestAnalyze_NineCorrectOneSkipped(t *testing.T) {
	steps := append(repeat(9, step{typ: "addition", correct: true, seconds: 3}), step{skip: true})
	session := buildSession(t, "s-1", steps)

	res := newScorer(t).Analyze(session, nil)

	assert.Equal(t, 100.0, res.Rates.Accuracy)
	assert.Equal(t, 90.0, res.Rates.Completion)
	assert.Equal(t, 0.0, res.Rates.Error)
	assert.Equal(t, 100.0, res.Scores.Accuracy)
	assert.Equal(t, 100.0, res.Scores.Speed)
	assert.Equal(t, 85.0, res.Scores.Completion)
	assert.Nil(t, res.Scores.Consistency)
	// Consistency weight is redistributed: (0.4*100 + 0.3*100 + 0.2*85) / 0.9
	assert.InDelta(t, 96.67, res.Scores.Overall, 1e-9)
	assert.Equal(t, "A+", res.Grade)
	assert.ElementsMatch(t, []string{"accuracy", "speed", "completion", "consistent pace"}, res.Strengths)
	assert.Empty(t, res.Weaknesses)
	assert.Nil(t, res.Comparison)
}

func TestAnalyze_WithHistory(t *testing.T) {
	session := buildSession(t, "s-3", repeat(10, step{typ: "addition", correct: true, seconds: 3}))
	history := []*training.Session{
		historic("s-2", 80, 5),
		historic("s-1", 90, 4),
		{ID: "other-level", Curriculum: shared.CurriculumAbacus, Level: "level-1", Status: training.StatusCompleted, Accuracy: 10},
		{ID: "live", Curriculum: shared.CurriculumAbacus, Level: "level-2", Status: training.StatusActive, Accuracy: 10},
	}

	res := newScorer(t).Analyze(session, history)

	require.NotNil(t, res.Scores.Consistency)
	_, sd := MeanStdDev([]float64{100, 80, 90})
	assert.InDelta(t, 100-2*sd, *res.Scores.Consistency, 1e-9)
	assert.InDelta(t, shared.Round2(40+30+20+0.1*(100-2*sd)), res.Scores.Overall, 1e-9)

	require.NotNil(t, res.Comparison)
	assert.Equal(t, 2, res.Comparison.SessionsCompared)
	assert.Equal(t, 15.0, res.Comparison.AccuracyDelta)
	assert.Equal(t, 1.5, res.Comparison.TimeDelta)
	assert.Equal(t, TrendImproving, res.Comparison.Trend)
}

func TestAnalyze_HistoryWindowCapped(t *testing.T) {
	session := buildSession(t, "s-x", repeat(2, step{typ: "addition", correct: true, seconds: 3}))
	var history []*training.Session
	for i := 0; i < 8; i++ {
		history = append(history, historic(fmt.Sprintf("h-%d", i), 100, 3))
	}

	res := newScorer(t).Analyze(session, history)
	require.NotNil(t, res.Comparison)
	assert.Equal(t, 5, res.Comparison.SessionsCompared)
	assert.Equal(t, TrendStable, res.Comparison.Trend)
}

func TestScoreSpeed(t *testing.T) {
	table := DefaultTables()[shared.CurriculumAbacus].Speed

	assert.Equal(t, 100.0, ScoreSpeed(3, table))
	assert.Equal(t, 85.0, ScoreSpeed(4.5, table))
	assert.Equal(t, 70.0, ScoreSpeed(8, table))
	assert.Equal(t, 50.0, ScoreSpeed(12, table))
	assert.Equal(t, 34.0, ScoreSpeed(20, table), "slower than worst keeps decaying")
	assert.Equal(t, 0.0, ScoreSpeed(40, table))
}

func TestScoreDescending_ClampsBelowLastTier(t *testing.T) {
	table := DefaultTables()[shared.CurriculumAbacus].Accuracy

	assert.Equal(t, 85.0, ScoreDescending(90, table))
	assert.Equal(t, 50.0, ScoreDescending(60, table))
	assert.Equal(t, 42.0, ScoreDescending(42, table))
	assert.Equal(t, 0.0, ScoreDescending(-5, table))
}

func TestGrade(t *testing.T) {
	cases := map[float64]string{
		95: "A+", 94.99: "A", 85: "B+", 80: "B", 75: "C+",
		70: "C", 65: "D+", 60: "D", 59.99: "F",
	}
	for score, want := range cases {
		assert.Equal(t, want, Grade(score), "score %v", score)
	}
}

func TestAnalyzeTimes(t *testing.T) {
	ta := AnalyzeTimes([]float64{5, 5, 2, 2})
	assert.Equal(t, 3.5, ta.Mean)
	assert.Equal(t, 2.0, ta.Min)
	assert.Equal(t, 5.0, ta.Max)
	assert.Equal(t, 1.5, ta.StdDev)
	assert.False(t, ta.Consistent)
	assert.Equal(t, -3.0, ta.HalfDelta)
	assert.Equal(t, TrendImproving, ta.Trend)

	assert.Equal(t, TrendDeclining, AnalyzeTimes([]float64{2, 2, 5, 5}).Trend)
	assert.Equal(t, TrendStable, AnalyzeTimes([]float64{3, 3.5, 3, 3.5}).Trend)
	assert.Equal(t, TrendStable, AnalyzeTimes(nil).Trend)
}

func TestAnalyzeErrors_TieBreaksAlphabetically(t *testing.T) {
	session := buildSession(t, "s-err", []step{
		{typ: "subtraction", seconds: 2},
		{typ: "subtraction", seconds: 2},
		{typ: "addition", seconds: 2},
		{typ: "addition", seconds: 2},
		{typ: "multiplication", seconds: 2},
		{typ: "multiplication", correct: true, seconds: 2},
	})

	ea := AnalyzeErrors(session)
	assert.Equal(t, 5, ea.Total)
	assert.Equal(t, "addition", ea.MostProblematic)
	require.Len(t, ea.ByType, 3)
	assert.Equal(t, TypeErrors{Type: "addition", Count: 2, Share: 40}, ea.ByType[0])
	assert.Equal(t, "multiplication", ea.ByType[2].Type)
}

func TestCompare_Mixed(t *testing.T) {
	session := &training.Session{Accuracy: 70, AverageTimePerQuestion: 3}
	c := Compare(session, []*training.Session{historic("a", 80, 5), historic("b", 90, 4)})
	assert.Equal(t, TrendMixed, c.Trend)

	session = &training.Session{Accuracy: 70, AverageTimePerQuestion: 6}
	c = Compare(session, []*training.Session{historic("a", 80, 5)})
	assert.Equal(t, TrendDeclining, c.Trend)
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	err := Weights{Accuracy: 0.5, Speed: 0.3, Completion: 0.2, Consistency: 0.1}.Validate()
	assert.ErrorIs(t, err, shared.ErrInvalidWeights)
	assert.True(t, shared.IsValidation(err))

	_, err = NewScorer(Config{Weights: Weights{Accuracy: 1.2, Speed: -0.2}})
	assert.ErrorIs(t, err, shared.ErrInvalidWeights)
}
