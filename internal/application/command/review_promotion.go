// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW PROMOTION COMMAND
// A trainer approves or rejects a pending promotion decision.
// Approval moves the student to the next level.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewPromotionCommand contains the data to review a decision.
type ReviewPromotionCommand struct {
	// DecisionID is the ID of the pending decision.
	DecisionID string

	// ReviewerID is the trainer making the call.
	ReviewerID string

	// Approve selects approval; false rejects.
	Approve bool

	// Note is an optional comment stored with the decision.
	Note string
}

// Validate validates the command.
func (c ReviewPromotionCommand) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DecisionID) == "" {
		problems = append(problems, "decision_id is required")
	}
	if strings.TrimSpace(c.ReviewerID) == "" {
		problems = append(problems, "reviewer_id is required")
	}
	if len(c.Note) > 1000 {
		problems = append(problems, "note must be at most 1000 characters")
	}
	if len(problems) > 0 {
		return shared.Errorf("promotion", "Review", shared.ErrValidation, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// ReviewPromotionResult contains the reviewed decision.
type ReviewPromotionResult struct {
	Decision *promotion.Decision

	// Promoted is true when the student's level was changed.
	Promoted bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReviewPromotionHandler handles the ReviewPromotionCommand.
type ReviewPromotionHandler struct {
	decisions promotion.DecisionRepository
	executor  promotion.LevelExecutor
	publisher shared.EventPublisher // Optional
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewReviewPromotionHandler creates a new ReviewPromotionHandler.
func NewReviewPromotionHandler(
	decisions promotion.DecisionRepository,
	executor promotion.LevelExecutor,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *ReviewPromotionHandler {
	if clock == nil {
		clock = timeutil.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewPromotionHandler{
		decisions: decisions,
		executor:  executor,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("component", "review_promotion"),
	}
}

// Handle executes the review.
func (h *ReviewPromotionHandler) Handle(ctx context.Context, cmd ReviewPromotionCommand) (*ReviewPromotionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	d, err := h.decisions.GetByID(ctx, cmd.DecisionID)
	if err != nil {
		return nil, err
	}
	if d.TrainerID != "" && d.TrainerID != cmd.ReviewerID {
		return nil, shared.ErrReviewerMismatch
	}

	pending := d.Clone()
	now := h.clock.Now()
	if cmd.Approve {
		err = d.Approve(cmd.ReviewerID, cmd.Note, now)
	} else {
		err = d.Reject(cmd.ReviewerID, cmd.Note, now)
	}
	if err != nil {
		return nil, err
	}

	// The stored status is claimed before the level changes, so only one
	// concurrent review reaches the executor.
	if err := h.decisions.Transition(ctx, d, promotion.StatusPending); err != nil {
		if errors.Is(err, shared.ErrDecisionNotPending) {
			return nil, err
		}
		return nil, fmt.Errorf("review_promotion: failed to save decision: %w", err)
	}

	promoted := false
	if cmd.Approve && h.executor != nil {
		if err := h.executor.ExecutePromotion(ctx, promotion.PromotionFrom(d, now)); err != nil {
			// Reopen so the trainer can retry.
			if rerr := h.decisions.Transition(ctx, pending, d.Status); rerr != nil {
				h.logger.Error("failed to reopen decision", "decision_id", d.ID, "error", rerr)
			}
			return nil, fmt.Errorf("review_promotion: failed to promote student: %w", err)
		}
		promoted = true
	}

	if h.publisher != nil {
		ev := shared.PromotionReviewedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventPromotionReviewed, d.ID, now),
			Recipients: shared.Recipients{StudentID: d.StudentID, TrainerID: d.TrainerID},
			ReviewerID: cmd.ReviewerID,
			Status:     string(d.Status),
			ToLevel:    d.ToLevel,
		}
		if err := h.publisher.Publish(ev); err != nil {
			h.logger.Warn("failed to publish review event", "decision_id", d.ID, "error", err)
		}
	}

	h.logger.Info("promotion reviewed",
		"decision_id", d.ID,
		"student_id", d.StudentID,
		"status", d.Status,
		"reviewer_id", cmd.ReviewerID,
	)
	return &ReviewPromotionResult{Decision: d, Promoted: promoted}, nil
}
