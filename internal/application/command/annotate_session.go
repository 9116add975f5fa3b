package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANNOTATE SESSION COMMAND
// Attaches trainer notes to a completed session.
// ══════════════════════════════════════════════════════════════════════════════

// MaxNotesLength bounds trainer notes.
const MaxNotesLength = 4000

// AnnotateSessionCommand contains the notes to store.
type AnnotateSessionCommand struct {
	SessionID string
	TrainerID string
	Notes     string
}

// Validate validates the command.
func (c AnnotateSessionCommand) Validate() error {
	var problems []string
	if strings.TrimSpace(c.SessionID) == "" {
		problems = append(problems, "session_id is required")
	}
	if strings.TrimSpace(c.TrainerID) == "" {
		problems = append(problems, "trainer_id is required")
	}
	if len(c.Notes) > MaxNotesLength {
		problems = append(problems, fmt.Sprintf("notes must be at most %d characters", MaxNotesLength))
	}
	if len(problems) > 0 {
		return shared.Errorf("training", "Annotate", shared.ErrValidation, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// AnnotateSessionResult contains the stored annotation.
type AnnotateSessionResult struct {
	SessionID   string
	Notes       string
	AnnotatedAt time.Time
}

// AnnotateSessionHandler handles the AnnotateSessionCommand.
type AnnotateSessionHandler struct {
	sessions training.SessionRepository
	clock    timeutil.Clock
}

// NewAnnotateSessionHandler creates a new AnnotateSessionHandler.
func NewAnnotateSessionHandler(sessions training.SessionRepository, clock timeutil.Clock) *AnnotateSessionHandler {
	if clock == nil {
		clock = timeutil.Real()
	}
	return &AnnotateSessionHandler{sessions: sessions, clock: clock}
}

// Handle stores the notes. Only the session's trainer may annotate it, and
// only once it is completed.
func (h *AnnotateSessionHandler) Handle(ctx context.Context, cmd AnnotateSessionCommand) (*AnnotateSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.sessions.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if s.TrainerID != "" && s.TrainerID != cmd.TrainerID {
		return nil, shared.ErrNotSessionTrainer
	}

	now := h.clock.Now()
	if err := s.Annotate(cmd.Notes, now); err != nil {
		return nil, err
	}
	if err := h.sessions.Annotate(ctx, s.ID, s.TrainerNotes, now); err != nil {
		return nil, fmt.Errorf("annotate_session: failed to save: %w", err)
	}

	return &AnnotateSessionResult{
		SessionID:   s.ID,
		Notes:       s.TrainerNotes,
		AnnotatedAt: now,
	}, nil
}
