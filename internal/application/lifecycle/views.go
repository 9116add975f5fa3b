package lifecycle

import (
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ExerciseView is an exercise as shown to the student, without the answer.
type ExerciseView struct {
	Index      int                 `json:"index"`
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Question   string              `json:"question"`
	Options    []string            `json:"options,omitempty"`
	AnswerType training.AnswerType `json:"answer_type"`
	HintCount  int                 `json:"hint_count"`
	Difficulty int                 `json:"difficulty"`
}

func viewExercise(s *training.Session) *ExerciseView {
	ex, ok := s.CurrentExercise()
	if !ok {
		return nil
	}
	return &ExerciseView{
		Index:      s.CurrentIndex,
		ID:         ex.ID,
		Type:       ex.Type,
		Question:   ex.Question,
		Options:    append([]string(nil), ex.Options...),
		AnswerType: ex.AnswerType,
		HintCount:  len(ex.Hints),
		Difficulty: ex.Difficulty,
	}
}

// StatusView summarizes a session.
type StatusView struct {
	SessionID              string               `json:"session_id"`
	StudentID              string               `json:"student_id"`
	TrainerID              string               `json:"trainer_id,omitempty"`
	Curriculum             string               `json:"curriculum"`
	Level                  string               `json:"level"`
	Status                 training.Status      `json:"status"`
	CurrentIndex           int                  `json:"current_index"`
	TotalExercises         int                  `json:"total_exercises"`
	CorrectAnswers         int                  `json:"correct_answers"`
	IncorrectAnswers       int                  `json:"incorrect_answers"`
	SkippedQuestions       int                  `json:"skipped_questions"`
	Accuracy               float64              `json:"accuracy"`
	AverageTimePerQuestion float64              `json:"average_time_per_question"`
	CompletionRate         float64              `json:"completion_rate"`
	Progress               float64              `json:"progress"`
	Remaining              time.Duration        `json:"remaining"`
	PauseOffset            time.Duration        `json:"pause_offset"`
	StartedAt              time.Time            `json:"started_at"`
	LastActivityAt         time.Time            `json:"last_activity_at"`
	Result                 training.ResultClass `json:"result,omitempty"`
}

func viewStatus(s *training.Session, now time.Time) StatusView {
	return StatusView{
		SessionID:              s.ID,
		StudentID:              s.StudentID,
		TrainerID:              s.TrainerID,
		Curriculum:             s.Curriculum.String(),
		Level:                  s.Level,
		Status:                 s.Status,
		CurrentIndex:           s.CurrentIndex,
		TotalExercises:         s.Total(),
		CorrectAnswers:         s.CorrectAnswers,
		IncorrectAnswers:       s.IncorrectAnswers,
		SkippedQuestions:       s.SkippedQuestions,
		Accuracy:               s.Accuracy,
		AverageTimePerQuestion: s.AverageTimePerQuestion,
		CompletionRate:         s.CompletionRate,
		Progress:               s.Progress(),
		Remaining:              s.Remaining(now),
		PauseOffset:            s.PauseOffset,
		StartedAt:              s.StartedAt,
		LastActivityAt:         s.LastActivityAt,
		Result:                 s.Result,
	}
}

// CreateResult is returned by Create.
type CreateResult struct {
	SessionID      string        `json:"session_id"`
	TotalExercises int           `json:"total_exercises"`
	Remaining      time.Duration `json:"remaining"`
	Exercise       *ExerciseView `json:"exercise"`
}

// CurrentExercise is returned by GetCurrentExercise. Exercise is nil once
// the batch is exhausted and Completed is set instead.
type CurrentExercise struct {
	Exercise  *ExerciseView `json:"exercise,omitempty"`
	Completed bool          `json:"completed"`
	Total     int           `json:"total"`
}

// AnswerResult is returned by SubmitAnswer.
type AnswerResult struct {
	Correct       bool              `json:"correct"`
	CorrectAnswer string            `json:"correct_answer"`
	Accuracy      float64           `json:"accuracy"`
	Progress      float64           `json:"progress"`
	Next          *ExerciseView     `json:"next,omitempty"`
	Completed     bool              `json:"completed"`
	Completion    *CompletionResult `json:"completion,omitempty"`
}

// SkipResult is returned by Skip.
type SkipResult struct {
	Progress   float64           `json:"progress"`
	Next       *ExerciseView     `json:"next,omitempty"`
	Completed  bool              `json:"completed"`
	Completion *CompletionResult `json:"completion,omitempty"`
}

// HintResult is returned by RequestHint.
type HintResult struct {
	Hint      string `json:"hint"`
	HasMore   bool   `json:"has_more"`
	HintsUsed int    `json:"hints_used"`
}

// CompletionResult is the terminal outcome of a session. Every Complete call
// for the same session returns the same value.
type CompletionResult struct {
	Session    *training.Session   `json:"-"`
	Status     StatusView          `json:"status"`
	Assessment *assessment.Result  `json:"assessment"`
	Decision   *promotion.Decision `json:"-"`
}
