package promotion

import (
	"strings"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// Status - состояние решения о переводе.
type Status string

const (
	// StatusNotEligible - критерии не выполнены, рассматривать нечего.
	StatusNotEligible Status = "not_eligible"
	// StatusPending - критерии выполнены, ждёт решения тренера.
	StatusPending Status = "pending"
	// StatusAutoApproved - уверенность выше порога, перевод выполнен сразу.
	StatusAutoApproved Status = "auto_approved"
	// StatusApproved - тренер одобрил перевод.
	StatusApproved Status = "approved"
	// StatusRejected - тренер отклонил перевод.
	StatusRejected Status = "rejected"
)

// IsPromoted возвращает true для статусов, после которых уровень меняется.
func (s Status) IsPromoted() bool {
	return s == StatusAutoApproved || s == StatusApproved
}

// Названия критериев.
const (
	CriterionSessionCount = "session_count"
	CriterionAccuracy     = "accuracy"
	CriterionAverageTime  = "average_time"
	CriterionConsistency  = "consistency"
	CriterionStreak       = "successful_streak"
)

// CriterionResult - результат проверки одного критерия.
type CriterionResult struct {
	Name     string  `json:"name"`
	Met      bool    `json:"met"`
	Measured float64 `json:"measured"`
	Required float64 `json:"required"`
}

// Metrics - агрегаты по окну сессий.
type Metrics struct {
	SessionsConsidered int     `json:"sessions_considered"`
	AverageAccuracy    float64 `json:"average_accuracy"`
	AverageTime        float64 `json:"average_time"`
	Consistency        float64 `json:"consistency"`
	SuccessfulSessions int     `json:"successful_sessions"`
	SuccessfulStreak   int     `json:"successful_streak"`
	ImprovementDelta   float64 `json:"improvement_delta"`
}

// Decision - решение о переводе на следующий уровень.
type Decision struct {
	ID         string
	StudentID  string
	TrainerID  string
	SessionID  string
	Curriculum shared.Curriculum
	FromLevel  string
	ToLevel    string

	// Criteria - копия критериев на момент оценки.
	Criteria Criteria
	Results  []CriterionResult
	Metrics  Metrics

	Eligible   bool
	Confidence float64
	Status     Status
	Reason     string

	CreatedAt  time.Time
	ReviewedAt *time.Time
	ReviewedBy string
	ReviewNote string
}

// IsPending возвращает true, если решение ждёт тренера.
func (d *Decision) IsPending() bool {
	return d.Status == StatusPending
}

// Approve фиксирует одобрение тренером.
func (d *Decision) Approve(reviewerID, note string, now time.Time) error {
	return d.review(StatusApproved, reviewerID, note, now)
}

// Reject фиксирует отказ тренера.
func (d *Decision) Reject(reviewerID, note string, now time.Time) error {
	return d.review(StatusRejected, reviewerID, note, now)
}

func (d *Decision) review(to Status, reviewerID, note string, now time.Time) error {
	if !d.IsPending() {
		return shared.ErrDecisionNotPending
	}
	if strings.TrimSpace(reviewerID) == "" {
		return shared.NewDomainError("promotion", "Review", shared.ErrValidation, "reviewer id is required")
	}
	d.Status = to
	d.ReviewedBy = reviewerID
	d.ReviewNote = strings.TrimSpace(note)
	d.ReviewedAt = &now
	return nil
}

// Outcome сворачивает решение в сводку для события SessionCompleted.
func (d *Decision) Outcome() *shared.PromotionOutcome {
	return &shared.PromotionOutcome{
		Eligible:   d.Eligible,
		Status:     string(d.Status),
		NextLevel:  d.ToLevel,
		Confidence: d.Confidence,
		DecisionID: d.ID,
	}
}

// Clone возвращает копию решения.
func (d *Decision) Clone() *Decision {
	c := *d
	c.Results = append([]CriterionResult(nil), d.Results...)
	if d.ReviewedAt != nil {
		v := *d.ReviewedAt
		c.ReviewedAt = &v
	}
	return &c
}
