package promotion

import (
	"context"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// DecisionRepository хранит решения о переводе.
type DecisionRepository interface {
	// Save создаёт или обновляет решение.
	Save(ctx context.Context, d *Decision) error

	// Transition записывает статус и поля рецензии d, только если сохранённый
	// статус всё ещё равен from. Иначе возвращает shared.ErrDecisionNotPending.
	Transition(ctx context.Context, d *Decision, from Status) error

	// GetByID возвращает shared.ErrDecisionNotFound, если решения нет.
	GetByID(ctx context.Context, id string) (*Decision, error)

	// ListPending возвращает ожидающие решения. Пустой trainerID - все.
	ListPending(ctx context.Context, trainerID string, limit int) ([]*Decision, error)

	// ListByStudent возвращает решения студента, новые первыми.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Decision, error)
}

// Promotion - команда на смену уровня студента.
type Promotion struct {
	DecisionID string
	StudentID  string
	Curriculum shared.Curriculum
	FromLevel  string
	ToLevel    string
	At         time.Time
}

// PromotionFrom строит команду из одобренного решения.
func PromotionFrom(d *Decision, at time.Time) Promotion {
	return Promotion{
		DecisionID: d.ID,
		StudentID:  d.StudentID,
		Curriculum: d.Curriculum,
		FromLevel:  d.FromLevel,
		ToLevel:    d.ToLevel,
		At:         at,
	}
}

// LevelExecutor обновляет текущий уровень студента и пишет историю переводов.
type LevelExecutor interface {
	ExecutePromotion(ctx context.Context, p Promotion) error
}
