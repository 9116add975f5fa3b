package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLACE CRITERIA COMMAND
// Swaps the live promotion criteria table. Decisions already made keep the
// criteria copied into them.
// ══════════════════════════════════════════════════════════════════════════════

// MaxCriteriaDocumentSize bounds an uploaded criteria document.
const MaxCriteriaDocumentSize = 1 << 20

// CriteriaParser validates a raw criteria document and builds the table.
type CriteriaParser func(raw []byte) (*promotion.CriteriaTable, error)

// ReplaceCriteriaCommand contains the new criteria document.
type ReplaceCriteriaCommand struct {
	Document []byte

	// ReplacedBy identifies the caller for the audit log.
	ReplacedBy string
}

// Validate validates the command.
func (c ReplaceCriteriaCommand) Validate() error {
	var problems []string
	if len(strings.TrimSpace(string(c.Document))) == 0 {
		problems = append(problems, "criteria document is required")
	}
	if len(c.Document) > MaxCriteriaDocumentSize {
		problems = append(problems, "criteria document is too large")
	}
	if len(problems) > 0 {
		return shared.Errorf("promotion", "ReplaceCriteria", shared.ErrValidation, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// ReplaceCriteriaResult summarizes the installed table.
type ReplaceCriteriaResult struct {
	Levels int
}

// ReplaceCriteriaHandler handles the ReplaceCriteriaCommand.
type ReplaceCriteriaHandler struct {
	registry *promotion.Registry
	parse    CriteriaParser
	logger   *slog.Logger
}

// NewReplaceCriteriaHandler creates a new ReplaceCriteriaHandler.
func NewReplaceCriteriaHandler(registry *promotion.Registry, parse CriteriaParser, logger *slog.Logger) *ReplaceCriteriaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplaceCriteriaHandler{
		registry: registry,
		parse:    parse,
		logger:   logger.With("component", "replace_criteria"),
	}
}

// Handle parses the document and installs it. A rejected document leaves the
// current table in place.
func (h *ReplaceCriteriaHandler) Handle(_ context.Context, cmd ReplaceCriteriaCommand) (*ReplaceCriteriaResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	table, err := h.parse(cmd.Document)
	if err != nil {
		if shared.IsValidation(err) {
			return nil, err
		}
		return nil, shared.WrapError("promotion", "ReplaceCriteria", shared.ErrValidation, "invalid criteria document", err)
	}
	h.registry.Replace(table)

	h.logger.Info("promotion criteria replaced",
		"levels", table.Levels(),
		"replaced_by", cmd.ReplacedBy,
	)
	return &ReplaceCriteriaResult{Levels: table.Levels()}, nil
}
