package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION DECISION QUERIES
// Очередь решений для тренера и история переводов студента.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultDecisionLimit = 20
	maxDecisionLimit     = 100
)

func normalizeLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, shared.NewDomainError("promotion", "List", shared.ErrValidation, "limit cannot be negative")
	}
	if limit == 0 {
		return defaultDecisionLimit, nil
	}
	if limit > maxDecisionLimit {
		return maxDecisionLimit, nil
	}
	return limit, nil
}

// ListPendingDecisionsQuery - решения, ожидающие тренера.
type ListPendingDecisionsQuery struct {
	// TrainerID - пустая строка возвращает очередь всех тренеров.
	TrainerID string
	Limit     int
}

// GetPromotionHistoryQuery - решения по студенту, новые первыми.
type GetPromotionHistoryQuery struct {
	StudentID string
	Limit     int
}

// DecisionsDTO - список решений.
type DecisionsDTO struct {
	Decisions []*promotion.Decision `json:"decisions"`
	Count     int                   `json:"count"`
}

// PromotionDecisionsHandler обрабатывает оба запроса.
type PromotionDecisionsHandler struct {
	decisions promotion.DecisionRepository
}

// NewPromotionDecisionsHandler создаёт обработчик.
func NewPromotionDecisionsHandler(decisions promotion.DecisionRepository) *PromotionDecisionsHandler {
	return &PromotionDecisionsHandler{decisions: decisions}
}

// Pending выполняет ListPendingDecisionsQuery.
func (h *PromotionDecisionsHandler) Pending(ctx context.Context, q ListPendingDecisionsQuery) (*DecisionsDTO, error) {
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}
	list, err := h.decisions.ListPending(ctx, q.TrainerID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending_decisions: %w", err)
	}
	return toDecisionsDTO(list), nil
}

// History выполняет GetPromotionHistoryQuery.
func (h *PromotionDecisionsHandler) History(ctx context.Context, q GetPromotionHistoryQuery) (*DecisionsDTO, error) {
	if strings.TrimSpace(q.StudentID) == "" {
		return nil, shared.NewDomainError("promotion", "History", shared.ErrValidation, "student_id is required")
	}
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}
	list, err := h.decisions.ListByStudent(ctx, q.StudentID, limit)
	if err != nil {
		return nil, fmt.Errorf("promotion_history: %w", err)
	}
	return toDecisionsDTO(list), nil
}

// Get возвращает одно решение.
func (h *PromotionDecisionsHandler) Get(ctx context.Context, id string) (*promotion.Decision, error) {
	return h.decisions.GetByID(ctx, id)
}

func toDecisionsDTO(list []*promotion.Decision) *DecisionsDTO {
	if list == nil {
		list = []*promotion.Decision{}
	}
	return &DecisionsDTO{Decisions: list, Count: len(list)}
}

// ══════════════════════════════════════════════════════════════════════════════
// GET CRITERIA QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CriteriaDTO - требования уровня и следующий уровень.
type CriteriaDTO struct {
	Curriculum string             `json:"curriculum"`
	Level      string             `json:"level"`
	NextLevel  string             `json:"next_level,omitempty"`
	Criteria   promotion.Criteria `json:"criteria"`
}

// GetCriteriaHandler читает действующую таблицу критериев.
type GetCriteriaHandler struct {
	registry *promotion.Registry
}

// NewGetCriteriaHandler создаёт обработчик.
func NewGetCriteriaHandler(registry *promotion.Registry) *GetCriteriaHandler {
	return &GetCriteriaHandler{registry: registry}
}

// Handle возвращает критерии уровня.
func (h *GetCriteriaHandler) Handle(curriculum, level string) (*CriteriaDTO, error) {
	c, ok := shared.ParseCurriculum(curriculum)
	if !ok {
		return nil, shared.Errorf("promotion", "Criteria", shared.ErrValidation, "unknown curriculum %q", curriculum)
	}
	table := h.registry.Current()
	criteria, err := table.Lookup(c, level)
	if err != nil {
		return nil, err
	}
	next, _ := table.NextLevel(c, level)
	return &CriteriaDTO{
		Curriculum: c.String(),
		Level:      level,
		NextLevel:  next,
		Criteria:   criteria,
	}, nil
}
