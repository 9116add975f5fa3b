package training

import (
	"time"
)

// AnswerType определяет, как сравнивать ответ студента с эталоном.
type AnswerType string

const (
	AnswerMultipleChoice AnswerType = "multiple_choice"
	AnswerNumeric        AnswerType = "numeric"
	AnswerText           AnswerType = "text"
	AnswerExact          AnswerType = "exact"
)

// HintUsage - запись об использовании подсказки.
type HintUsage struct {
	Index int       `json:"index"`
	At    time.Time `json:"at"`
}

// Exercise - одно упражнение сессии.
// После ответа или пропуска запись не меняется.
type Exercise struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Question      string     `json:"question"`
	Options       []string   `json:"options,omitempty"`
	CorrectAnswer string     `json:"correct_answer"`
	AnswerType    AnswerType `json:"answer_type"`
	Hints         []string   `json:"hints,omitempty"`
	Difficulty    int        `json:"difficulty"`

	StudentAnswer string      `json:"student_answer,omitempty"`
	IsCorrect     *bool       `json:"is_correct,omitempty"`
	TimeSpent     float64     `json:"time_spent"`
	Attempts      int         `json:"attempts"`
	HintsUsed     int         `json:"hints_used"`
	HintLog       []HintUsage `json:"hint_log,omitempty"`
	IsAnswered    bool        `json:"is_answered"`
	IsSkipped     bool        `json:"is_skipped"`
	SkipReason    string      `json:"skip_reason,omitempty"`
	AnsweredAt    *time.Time  `json:"answered_at,omitempty"`
}

// IsFinal возвращает true, если упражнение уже отвечено или пропущено.
func (e *Exercise) IsFinal() bool {
	return e.IsAnswered || e.IsSkipped
}

// Correct возвращает true только для отвеченного верно упражнения.
func (e *Exercise) Correct() bool {
	return e.IsCorrect != nil && *e.IsCorrect
}

// HasMoreHints сообщает, остались ли неиспользованные подсказки после index.
func (e *Exercise) HasMoreHints(index int) bool {
	return index+1 < len(e.Hints)
}

func (e *Exercise) markAnswered(answer string, correct bool, timeSpent float64, at time.Time) {
	e.StudentAnswer = answer
	e.IsCorrect = &correct
	e.TimeSpent = timeSpent
	e.Attempts++
	e.IsAnswered = true
	e.AnsweredAt = &at
}

func (e *Exercise) markSkipped(reason string, at time.Time) {
	e.IsSkipped = true
	e.SkipReason = reason
	e.AnsweredAt = &at
}

func (e *Exercise) clone() *Exercise {
	c := *e
	if e.Options != nil {
		c.Options = append([]string(nil), e.Options...)
	}
	if e.Hints != nil {
		c.Hints = append([]string(nil), e.Hints...)
	}
	if e.HintLog != nil {
		c.HintLog = append([]HintUsage(nil), e.HintLog...)
	}
	if e.IsCorrect != nil {
		v := *e.IsCorrect
		c.IsCorrect = &v
	}
	if e.AnsweredAt != nil {
		v := *e.AnsweredAt
		c.AnsweredAt = &v
	}
	return &c
}
