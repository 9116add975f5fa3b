package training

import (
	"context"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Контракты внешних систем. Реализации находятся в infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// ─────────────────────────────────────────────────────────────────────────────
// Exercise Generator
// ─────────────────────────────────────────────────────────────────────────────

// AdaptiveHint - сжатая модель студента, передаваемая генератору.
type AdaptiveHint struct {
	RecentAccuracy  float64  `json:"recent_accuracy"`
	AverageTime     float64  `json:"average_time"`
	WeakTypes       []string `json:"weak_types,omitempty"`
	SuggestedOffset int      `json:"suggested_offset"`
}

// GenerateRequest - запрос пакета упражнений.
type GenerateRequest struct {
	Curriculum     shared.Curriculum  `json:"curriculum"`
	Level          string             `json:"level"`
	AgeGroup       shared.AgeGroup    `json:"age_group"`
	SessionType    shared.SessionType `json:"session_type"`
	Count          int                `json:"count"`
	Adaptive       *AdaptiveHint      `json:"adaptive,omitempty"`
	CustomSettings map[string]string  `json:"custom_settings,omitempty"`
}

// GeneratedBatch - ответ генератора.
type GeneratedBatch struct {
	Exercises  []*Exercise `json:"exercises"`
	Difficulty Difficulty  `json:"difficulty"`
}

// ExerciseGenerator создаёт упражнения. Алгоритм генерации вне этой системы.
type ExerciseGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedBatch, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Session Repository
// ─────────────────────────────────────────────────────────────────────────────

// RecentQuery выбирает последние завершённые сессии студента.
type RecentQuery struct {
	StudentID  string
	Curriculum shared.Curriculum
	Level      string
	// ExcludeID исключает текущую сессию из выборки.
	ExcludeID string
	// Before, если задан, оставляет только сессии, завершённые раньше.
	Before *time.Time
	Limit  int
}

// SessionRepository - долговременное хранилище сессий.
type SessionRepository interface {
	// Save создаёт или обновляет сессию целиком. Снимок, который старше
	// сохранённой строки, или перезапись завершённой сессии отклоняются
	// с shared.ErrStaleSession.
	Save(ctx context.Context, s *Session) error

	// Annotate записывает заметки тренера в завершённую сессию.
	// Возвращает shared.ErrSessionNotCompleted для незавершённой сессии.
	Annotate(ctx context.Context, id, notes string, at time.Time) error

	// GetByID возвращает сессию.
	// Возвращает shared.ErrSessionNotFound, если сессии нет.
	GetByID(ctx context.Context, id string) (*Session, error)

	// FindRecent возвращает завершённые сессии, новые первыми.
	FindRecent(ctx context.Context, q RecentQuery) ([]*Session, error)

	// FindUnfinished возвращает active и paused сессии для восстановления после рестарта.
	FindUnfinished(ctx context.Context) ([]*Session, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// User Directory
// ─────────────────────────────────────────────────────────────────────────────

// Person - студент или тренер из внешнего справочника.
type Person struct {
	ID            string
	Code          string
	Name          string
	AgeGroup      shared.AgeGroup
	CurrentLevels map[shared.Curriculum]string
}

// UserDirectory разрешает идентификаторы студентов и тренеров.
type UserDirectory interface {
	// GetStudent возвращает shared.ErrStudentNotFound для неизвестного id.
	GetStudent(ctx context.Context, id string) (*Person, error)

	// GetTrainer возвращает shared.ErrTrainerNotFound для неизвестного id.
	GetTrainer(ctx context.Context, id string) (*Person, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Adaptive Profile Store
// ─────────────────────────────────────────────────────────────────────────────

// ExerciseOutcome - итог одного упражнения для адаптивной модели.
type ExerciseOutcome struct {
	StudentID    string            `json:"student_id"`
	Curriculum   shared.Curriculum `json:"curriculum"`
	Level        string            `json:"level"`
	ExerciseType string            `json:"exercise_type"`
	Correct      bool              `json:"correct"`
	Skipped      bool              `json:"skipped"`
	TimeSpent    float64           `json:"time_spent"`
	At           time.Time         `json:"at"`
}

// NewOutcome строит ExerciseOutcome по зафиксированному упражнению.
func NewOutcome(s *Session, ex *Exercise, at time.Time) ExerciseOutcome {
	return ExerciseOutcome{
		StudentID:    s.StudentID,
		Curriculum:   s.Curriculum,
		Level:        s.Level,
		ExerciseType: ex.Type,
		Correct:      ex.Correct(),
		Skipped:      ex.IsSkipped,
		TimeSpent:    ex.TimeSpent,
		At:           at,
	}
}

// AdaptiveProfileStore ведёт долгосрочную модель успеваемости студента.
type AdaptiveProfileStore interface {
	RecordOutcome(ctx context.Context, o ExerciseOutcome) error

	// Hint возвращает nil без ошибки, если данных о студенте ещё нет.
	Hint(ctx context.Context, studentID string, c shared.Curriculum) (*AdaptiveHint, error)
}
