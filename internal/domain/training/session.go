package training

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние сессии.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// IsLive возвращает true, пока сессия не завершена.
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusPaused
}

// ResultClass - итоговая оценка сессии.
type ResultClass string

const (
	ResultExcellent        ResultClass = "excellent"
	ResultGood             ResultClass = "good"
	ResultSatisfactory     ResultClass = "satisfactory"
	ResultNeedsImprovement ResultClass = "needs_improvement"
	ResultPoor             ResultClass = "poor"
)

// Причины завершения сессии.
const (
	ReasonFinished = "finished"
	ReasonTimeout  = "timeout"
	ReasonInactive = "inactive"
	ReasonManual   = "manual"
)

var resultTiers = []struct {
	threshold float64
	class     ResultClass
}{
	{90, ResultExcellent},
	{80, ResultGood},
	{70, ResultSatisfactory},
	{60, ResultNeedsImprovement},
}

// Classify определяет итоговую оценку. Первый подходящий порог выигрывает.
// Точность сравнивается включительно, завершённость строго больше порога:
// 9 верных из 10 при одном пропуске дают good, а не excellent.
func Classify(accuracy, completionRate float64) ResultClass {
	for _, tier := range resultTiers {
		if accuracy >= tier.threshold && completionRate > tier.threshold {
			return tier.class
		}
	}
	return ResultPoor
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings - правила конкретной сессии.
type Settings struct {
	AllowHints     bool          `json:"allow_hints"`
	AllowSkip      bool          `json:"allow_skip"`
	AutoSave       bool          `json:"auto_save"`
	DurationBudget time.Duration `json:"duration_budget"`
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		AllowHints:     true,
		AllowSkip:      true,
		AutoSave:       true,
		DurationBudget: 10 * time.Minute,
	}
}

// Difficulty - метаданные сложности, которые вернул генератор.
type Difficulty struct {
	Level    string  `json:"level"`
	Score    float64 `json:"score"`
	Adaptive bool    `json:"adaptive"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - одна тренировочная попытка студента.
type Session struct {
	ID          string             `json:"id"`
	StudentID   string             `json:"student_id"`
	TrainerID   string             `json:"trainer_id,omitempty"`
	Curriculum  shared.Curriculum  `json:"curriculum"`
	Level       string             `json:"level"`
	AgeGroup    shared.AgeGroup    `json:"age_group"`
	SessionType shared.SessionType `json:"session_type"`

	Exercises    []*Exercise `json:"exercises"`
	CurrentIndex int         `json:"current_index"`
	Status       Status      `json:"status"`
	Settings     Settings    `json:"settings"`
	Difficulty   Difficulty  `json:"difficulty"`

	StartedAt      time.Time     `json:"started_at"`
	PausedAt       *time.Time    `json:"paused_at,omitempty"`
	PauseReason    string        `json:"pause_reason,omitempty"`
	PauseOffset    time.Duration `json:"pause_offset"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	LastActivityAt time.Time     `json:"last_activity_at"`

	CorrectAnswers   int `json:"correct_answers"`
	IncorrectAnswers int `json:"incorrect_answers"`
	SkippedQuestions int `json:"skipped_questions"`

	// Производные метрики, пересчитываются из счётчиков.
	Accuracy               float64 `json:"accuracy"`
	AverageTimePerQuestion float64 `json:"average_time_per_question"`
	CompletionRate         float64 `json:"completion_rate"`

	Result           ResultClass `json:"result,omitempty"`
	CompletionReason string      `json:"completion_reason,omitempty"`

	// Единственные поля, которые меняются после завершения.
	TrainerNotes string     `json:"trainer_notes,omitempty"`
	AnnotatedAt  *time.Time `json:"annotated_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionParams содержит параметры для создания сессии.
type NewSessionParams struct {
	ID          string
	StudentID   string
	TrainerID   string
	Curriculum  shared.Curriculum
	Level       string
	AgeGroup    shared.AgeGroup
	SessionType shared.SessionType
	Exercises   []*Exercise
	Settings    Settings
	Difficulty  Difficulty
	Now         time.Time
}

// NewSession создаёт активную сессию с currentIndex = 0.
func NewSession(p NewSessionParams) (*Session, error) {
	var problems []string

	if p.ID == "" {
		problems = append(problems, "id is required")
	}
	if p.StudentID == "" {
		problems = append(problems, "student id is required")
	}
	if !p.Curriculum.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown curriculum %q", p.Curriculum))
	}
	if strings.TrimSpace(p.Level) == "" {
		problems = append(problems, "level is required")
	}
	if len(p.Exercises) == 0 {
		problems = append(problems, "at least one exercise is required")
	}
	if p.Settings.DurationBudget <= 0 {
		problems = append(problems, "duration budget must be positive")
	}
	for i, ex := range p.Exercises {
		if ex == nil {
			problems = append(problems, fmt.Sprintf("exercise %d is nil", i))
			continue
		}
		if ex.IsFinal() {
			problems = append(problems, fmt.Sprintf("exercise %d is already answered", i))
		}
	}

	if len(problems) > 0 {
		return nil, shared.Errorf("training", "NewSession", shared.ErrValidation,
			"invalid session: %s", strings.Join(problems, "; "))
	}

	return &Session{
		ID:             p.ID,
		StudentID:      p.StudentID,
		TrainerID:      p.TrainerID,
		Curriculum:     p.Curriculum,
		Level:          strings.TrimSpace(p.Level),
		AgeGroup:       p.AgeGroup,
		SessionType:    p.SessionType,
		Exercises:      p.Exercises,
		Status:         StatusActive,
		Settings:       p.Settings,
		Difficulty:     p.Difficulty,
		StartedAt:      p.Now,
		LastActivityAt: p.Now,
		UpdatedAt:      p.Now,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// Total возвращает количество упражнений.
func (s *Session) Total() int {
	return len(s.Exercises)
}

// Answered возвращает количество отвеченных (не пропущенных) упражнений.
func (s *Session) Answered() int {
	return s.CorrectAnswers + s.IncorrectAnswers
}

// Progress возвращает процент пройденных упражнений.
func (s *Session) Progress() float64 {
	return shared.Percent(s.CurrentIndex, s.Total())
}

// IsExhausted возвращает true, когда упражнения закончились.
func (s *Session) IsExhausted() bool {
	return s.CurrentIndex >= len(s.Exercises)
}

// CurrentExercise возвращает текущее упражнение или false, если их не осталось.
func (s *Session) CurrentExercise() (*Exercise, bool) {
	if s.IsExhausted() {
		return nil, false
	}
	return s.Exercises[s.CurrentIndex], true
}

// ActiveElapsed возвращает чистое время тренировки без пауз.
// Во время паузы часы стоят на моменте её начала.
func (s *Session) ActiveElapsed(now time.Time) time.Duration {
	ref := now
	switch {
	case s.EndedAt != nil:
		ref = *s.EndedAt
	case s.PausedAt != nil:
		ref = *s.PausedAt
	}
	elapsed := ref.Sub(s.StartedAt) - s.PauseOffset
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining возвращает max(0, бюджет - чистое время).
func (s *Session) Remaining(now time.Time) time.Duration {
	left := s.Settings.DurationBudget - s.ActiveElapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// CheckInvariants проверяет согласованность счётчиков.
func (s *Session) CheckInvariants() error {
	if s.CurrentIndex < 0 || s.CurrentIndex > len(s.Exercises) {
		return fmt.Errorf("current index %d out of range [0, %d]", s.CurrentIndex, len(s.Exercises))
	}
	if sum := s.CorrectAnswers + s.IncorrectAnswers + s.SkippedQuestions; sum != s.CurrentIndex {
		return fmt.Errorf("counters sum %d != current index %d", sum, s.CurrentIndex)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutations
// ─────────────────────────────────────────────────────────────────────────────

func (s *Session) requireActive() error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusPaused:
		return shared.ErrSessionIsPaused
	default:
		return shared.ErrSessionNotActive
	}
}

// SubmitAnswer фиксирует ответ на текущее упражнение и сдвигает указатель.
func (s *Session) SubmitAnswer(answer string, timeSpent float64, now time.Time) (*Exercise, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	if math.IsNaN(timeSpent) || math.IsInf(timeSpent, 0) || timeSpent < 0 {
		return nil, shared.Errorf("training", "SubmitAnswer", shared.ErrValidation,
			"time spent must be a non-negative number, got %v", timeSpent)
	}
	ex, ok := s.CurrentExercise()
	if !ok {
		return nil, shared.ErrNoRemainingExercise
	}

	correct := Validate(ex, answer)
	ex.markAnswered(answer, correct, timeSpent, now)
	if correct {
		s.CorrectAnswers++
	} else {
		s.IncorrectAnswers++
	}
	s.advance(now)
	return ex, nil
}

// Skip помечает текущее упражнение пропущенным.
func (s *Session) Skip(reason string, now time.Time) (*Exercise, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	if !s.Settings.AllowSkip {
		return nil, shared.ErrSkipDisabled
	}
	ex, ok := s.CurrentExercise()
	if !ok {
		return nil, shared.ErrNoRemainingExercise
	}

	ex.markSkipped(reason, now)
	s.SkippedQuestions++
	s.advance(now)
	return ex, nil
}

// RequestHint отдаёт подсказку текущего упражнения.
// Возвращает текст подсказки и признак того, что подсказки ещё остались.
func (s *Session) RequestHint(index int, now time.Time) (string, bool, error) {
	if err := s.requireActive(); err != nil {
		return "", false, err
	}
	if !s.Settings.AllowHints {
		return "", false, shared.ErrHintsDisabled
	}
	ex, ok := s.CurrentExercise()
	if !ok {
		return "", false, shared.ErrNoRemainingExercise
	}
	if len(ex.Hints) == 0 {
		return "", false, shared.ErrNoHints
	}
	if index < 0 || index >= len(ex.Hints) {
		return "", false, shared.ErrHintOutOfRange
	}

	ex.HintsUsed++
	ex.HintLog = append(ex.HintLog, HintUsage{Index: index, At: now})
	s.touch(now)
	return ex.Hints[index], ex.HasMoreHints(index), nil
}

// Pause ставит сессию на паузу.
func (s *Session) Pause(reason string, now time.Time) error {
	switch s.Status {
	case StatusPaused:
		return shared.ErrSessionPaused
	case StatusCompleted:
		return shared.ErrSessionNotActive
	}

	s.Status = StatusPaused
	s.PausedAt = &now
	s.PauseReason = reason
	s.touch(now)
	return nil
}

// Resume снимает паузу и возвращает её длительность.
func (s *Session) Resume(now time.Time) (time.Duration, error) {
	if s.Status != StatusPaused || s.PausedAt == nil {
		return 0, shared.ErrSessionNotPaused
	}

	pausedFor := s.closePause(now)
	s.Status = StatusActive
	s.PauseReason = ""
	s.touch(now)
	return pausedFor, nil
}

// Complete переводит сессию в терминальное состояние.
// Повторный вызов ничего не меняет и возвращает false.
func (s *Session) Complete(reason string, now time.Time) bool {
	if s.Status == StatusCompleted {
		return false
	}
	if s.Status == StatusPaused {
		s.closePause(now)
	}

	s.Status = StatusCompleted
	s.EndedAt = &now
	s.CompletionReason = reason
	s.recompute()
	s.Result = Classify(s.Accuracy, s.CompletionRate)
	s.UpdatedAt = now
	return true
}

// Annotate записывает заметки тренера в завершённую сессию.
func (s *Session) Annotate(notes string, now time.Time) error {
	if s.Status != StatusCompleted {
		return shared.ErrSessionNotCompleted
	}
	s.TrainerNotes = strings.TrimSpace(notes)
	s.AnnotatedAt = &now
	s.UpdatedAt = now
	return nil
}

func (s *Session) closePause(now time.Time) time.Duration {
	if s.PausedAt == nil {
		return 0
	}
	pausedFor := now.Sub(*s.PausedAt)
	if pausedFor < 0 {
		pausedFor = 0
	}
	s.PauseOffset += pausedFor
	s.PausedAt = nil
	return pausedFor
}

func (s *Session) advance(now time.Time) {
	s.CurrentIndex++
	s.recompute()
	s.touch(now)
}

func (s *Session) touch(now time.Time) {
	s.LastActivityAt = now
	s.UpdatedAt = now
}

// recompute пересчитывает точность, среднее время и завершённость из счётчиков.
// Среднее время - сумма TimeSpent по отвеченным упражнениям, делённая на их число.
func (s *Session) recompute() {
	answered := s.Answered()
	s.Accuracy = shared.Percent(s.CorrectAnswers, answered)
	s.CompletionRate = shared.Percent(answered, s.Total())

	var total float64
	for _, ex := range s.Exercises {
		if ex.IsAnswered {
			total += ex.TimeSpent
		}
	}
	if answered > 0 {
		s.AverageTimePerQuestion = total / float64(answered)
	} else {
		s.AverageTimePerQuestion = 0
	}
}

// Clone возвращает глубокую копию сессии.
func (s *Session) Clone() *Session {
	c := *s
	c.Exercises = make([]*Exercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		c.Exercises[i] = ex.clone()
	}
	if s.PausedAt != nil {
		v := *s.PausedAt
		c.PausedAt = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		c.EndedAt = &v
	}
	if s.AnnotatedAt != nil {
		v := *s.AnnotatedAt
		c.AnnotatedAt = &v
	}
	return &c
}
