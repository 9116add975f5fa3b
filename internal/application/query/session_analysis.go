// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION ANALYSIS QUERY
// Пересчитывает разбор сохранённой сессии: баллы, оценку, сравнение
// с историей студента на том же уровне.
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionAnalysisQuery содержит параметры запроса.
type GetSessionAnalysisQuery struct {
	SessionID string

	// RequesterID - студент или тренер сессии. Пустая строка - без проверки.
	RequesterID string
}

// Validate проверяет корректность параметров запроса.
func (q GetSessionAnalysisQuery) Validate() error {
	if strings.TrimSpace(q.SessionID) == "" {
		return shared.NewDomainError("training", "Analyze", shared.ErrValidation, "session_id is required")
	}
	return nil
}

// SessionAnalysisDTO - ответ на запрос.
type SessionAnalysisDTO struct {
	SessionID        string             `json:"session_id"`
	StudentID        string             `json:"student_id"`
	Status           training.Status    `json:"status"`
	Result           string             `json:"result,omitempty"`
	CompletionReason string             `json:"completion_reason,omitempty"`
	TrainerNotes     string             `json:"trainer_notes,omitempty"`
	HistoryUsed      int                `json:"history_used"`
	Analysis         *assessment.Result `json:"analysis"`
}

// GetSessionAnalysisHandler обрабатывает запрос.
type GetSessionAnalysisHandler struct {
	sessions training.SessionRepository
	scorer   *assessment.Scorer
}

// NewGetSessionAnalysisHandler создаёт обработчик.
func NewGetSessionAnalysisHandler(sessions training.SessionRepository, scorer *assessment.Scorer) *GetSessionAnalysisHandler {
	return &GetSessionAnalysisHandler{sessions: sessions, scorer: scorer}
}

// Handle выполняет запрос. Незавершённые сессии не разбираются.
func (h *GetSessionAnalysisHandler) Handle(ctx context.Context, q GetSessionAnalysisQuery) (*SessionAnalysisDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s, err := h.sessions.GetByID(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}
	if q.RequesterID != "" && q.RequesterID != s.StudentID && q.RequesterID != s.TrainerID {
		// Чужая сессия выглядит как отсутствующая.
		return nil, shared.ErrSessionNotFound
	}
	if s.Status != training.StatusCompleted {
		return nil, shared.ErrSessionNotCompleted
	}

	history, err := h.sessions.FindRecent(ctx, training.RecentQuery{
		StudentID:  s.StudentID,
		Curriculum: s.Curriculum,
		Level:      s.Level,
		ExcludeID:  s.ID,
		Before:     s.EndedAt,
		Limit:      h.scorer.HistoryWindow(),
	})
	if err != nil {
		return nil, fmt.Errorf("session_analysis: failed to load history: %w", err)
	}

	analysis := h.scorer.Analyze(s, history)
	used := 0
	if analysis.Comparison != nil {
		used = analysis.Comparison.SessionsCompared
	}

	return &SessionAnalysisDTO{
		SessionID:        s.ID,
		StudentID:        s.StudentID,
		Status:           s.Status,
		Result:           string(s.Result),
		CompletionReason: s.CompletionReason,
		TrainerNotes:     s.TrainerNotes,
		HistoryUsed:      used,
		Analysis:         analysis,
	}, nil
}
