package http

import (
	"time"

	"github.com/sharpmind/trainer-hub/internal/application/lifecycle"
	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/messaging"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	StudentID      string            `json:"student_id"`
	TrainerID      string            `json:"trainer_id,omitempty"`
	Curriculum     string            `json:"curriculum"`
	Level          string            `json:"level,omitempty"`
	AgeGroup       string            `json:"age_group,omitempty"`
	SessionType    string            `json:"session_type,omitempty"`
	QuestionCount  int               `json:"question_count,omitempty"`
	Settings       *SettingsDTO      `json:"settings,omitempty"`
	CustomSettings map[string]string `json:"custom_settings,omitempty"`
}

// SettingsDTO carries session settings with the budget in seconds.
type SettingsDTO struct {
	AllowHints            bool `json:"allow_hints"`
	AllowSkip             bool `json:"allow_skip"`
	AutoSave              bool `json:"auto_save"`
	DurationBudgetSeconds int  `json:"duration_budget_seconds,omitempty"`
}

func (s *SettingsDTO) toDomain() *training.Settings {
	if s == nil {
		return nil
	}
	return &training.Settings{
		AllowHints:     s.AllowHints,
		AllowSkip:      s.AllowSkip,
		AutoSave:       s.AutoSave,
		DurationBudget: time.Duration(s.DurationBudgetSeconds) * time.Second,
	}
}

// SubmitAnswerRequest is the body of POST .../answers.
type SubmitAnswerRequest struct {
	Answer    string  `json:"answer"`
	TimeSpent float64 `json:"time_spent"`
}

// ReasonRequest is the optional body of skip, pause and complete.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// HintRequest is the body of POST .../hints.
type HintRequest struct {
	HintIndex int `json:"hint_index"`
}

// AnnotateRequest is the body of PUT .../notes.
type AnnotateRequest struct {
	TrainerID string `json:"trainer_id"`
	Notes     string `json:"notes"`
}

// ReviewRequest is the body of POST /api/v1/promotions/{id}/review.
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Approve    bool   `json:"approve"`
	Note       string `json:"note,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// DecisionDTO is the wire form of a promotion decision.
type DecisionDTO struct {
	ID         string                      `json:"id"`
	StudentID  string                      `json:"student_id"`
	TrainerID  string                      `json:"trainer_id,omitempty"`
	SessionID  string                      `json:"session_id"`
	Curriculum string                      `json:"curriculum"`
	FromLevel  string                      `json:"from_level"`
	ToLevel    string                      `json:"to_level,omitempty"`
	Criteria   promotion.Criteria          `json:"criteria"`
	Results    []promotion.CriterionResult `json:"results"`
	Metrics    promotion.Metrics           `json:"metrics"`
	Eligible   bool                        `json:"eligible"`
	Confidence float64                     `json:"confidence"`
	Status     promotion.Status            `json:"status"`
	Reason     string                      `json:"reason,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
	ReviewedAt *time.Time                  `json:"reviewed_at,omitempty"`
	ReviewedBy string                      `json:"reviewed_by,omitempty"`
	ReviewNote string                      `json:"review_note,omitempty"`
}

func toDecisionDTO(d *promotion.Decision) *DecisionDTO {
	if d == nil {
		return nil
	}
	results := d.Results
	if results == nil {
		results = []promotion.CriterionResult{}
	}
	return &DecisionDTO{
		ID:         d.ID,
		StudentID:  d.StudentID,
		TrainerID:  d.TrainerID,
		SessionID:  d.SessionID,
		Curriculum: d.Curriculum.String(),
		FromLevel:  d.FromLevel,
		ToLevel:    d.ToLevel,
		Criteria:   d.Criteria,
		Results:    results,
		Metrics:    d.Metrics,
		Eligible:   d.Eligible,
		Confidence: d.Confidence,
		Status:     d.Status,
		Reason:     d.Reason,
		CreatedAt:  d.CreatedAt,
		ReviewedAt: d.ReviewedAt,
		ReviewedBy: d.ReviewedBy,
		ReviewNote: d.ReviewNote,
	}
}

func toDecisionDTOs(list []*promotion.Decision) []*DecisionDTO {
	out := make([]*DecisionDTO, 0, len(list))
	for _, d := range list {
		out = append(out, toDecisionDTO(d))
	}
	return out
}

// CompletionDTO is the terminal outcome of a session.
type CompletionDTO struct {
	Status     lifecycle.StatusView `json:"status"`
	Assessment *assessment.Result   `json:"assessment"`
	Promotion  *DecisionDTO         `json:"promotion,omitempty"`
}

func toCompletionDTO(c *lifecycle.CompletionResult) *CompletionDTO {
	if c == nil {
		return nil
	}
	return &CompletionDTO{
		Status:     c.Status,
		Assessment: c.Assessment,
		Promotion:  toDecisionDTO(c.Decision),
	}
}

// AnswerResponse wraps lifecycle.AnswerResult with a wire-form completion.
type AnswerResponse struct {
	*lifecycle.AnswerResult
	Completion *CompletionDTO `json:"completion,omitempty"`
}

// SkipResponse wraps lifecycle.SkipResult with a wire-form completion.
type SkipResponse struct {
	*lifecycle.SkipResult
	Completion *CompletionDTO `json:"completion,omitempty"`
}

// ReviewResponse is the result of a review.
type ReviewResponse struct {
	Decision *DecisionDTO `json:"decision"`
	Promoted bool         `json:"promoted"`
}

// JobDTO describes a scheduled job.
type JobDTO struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastError   string     `json:"last_error,omitempty"`
}

func toJobDTO(info scheduler.JobInfo) JobDTO {
	dto := JobDTO{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Schedule:    info.Schedule,
		NextRun:     info.NextRun,
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if !info.LastRun.IsZero() {
		last := info.LastRun
		dto.LastRun = &last
	}
	if info.LastResult != nil && info.LastResult.Error != nil {
		dto.LastError = info.LastResult.Error.Error()
	}
	return dto
}

// JobRunDTO is the outcome of a manual job run.
type JobRunDTO struct {
	Job        string  `json:"job"`
	Success    bool    `json:"success"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// DeadLetterDTO is a delivery parked after its handler kept failing.
type DeadLetterDTO struct {
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Handler     string    `json:"handler"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

func toDeadLetterDTO(e messaging.DeadLetterEntry) DeadLetterDTO {
	dto := DeadLetterDTO{
		EventType:   string(e.Event.EventType()),
		AggregateID: e.Event.AggregateID(),
		Handler:     e.HandlerName,
		Attempts:    e.Attempts,
		FailedAt:    e.FailedAt,
	}
	if e.Error != nil {
		dto.Error = e.Error.Error()
	}
	return dto
}

// CriteriaReplacedDTO is the outcome of PUT /admin/criteria.
type CriteriaReplacedDTO struct {
	Levels int `json:"levels"`
}

// DeadLetterRetryDTO is the outcome of POST /admin/dead-letters/retry.
type DeadLetterRetryDTO struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
