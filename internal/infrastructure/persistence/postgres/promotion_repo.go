package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION DECISION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DecisionRepository implements promotion.DecisionRepository for PostgreSQL.
type DecisionRepository struct {
	conn *Connection
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(conn *Connection) *DecisionRepository {
	return &DecisionRepository{conn: conn}
}

const decisionColumns = `
	id, student_id, COALESCE(trainer_id, ''), session_id, curriculum, from_level, to_level,
	criteria, results, metrics, eligible, confidence, status, reason,
	created_at, reviewed_at, reviewed_by, review_note
`

// Save upserts a decision. Only review fields change after creation.
func (r *DecisionRepository) Save(ctx context.Context, d *promotion.Decision) error {
	criteriaJSON, err := json.Marshal(d.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	resultsJSON, err := json.Marshal(d.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal criterion results: %w", err)
	}
	metricsJSON, err := json.Marshal(d.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO promotion_decisions (
			id, student_id, trainer_id, session_id, curriculum, from_level, to_level,
			criteria, results, metrics, eligible, confidence, status, reason,
			created_at, reviewed_at, reviewed_by, review_note
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reviewed_at = EXCLUDED.reviewed_at,
			reviewed_by = EXCLUDED.reviewed_by,
			review_note = EXCLUDED.review_note
	`,
		d.ID,
		d.StudentID,
		d.TrainerID,
		d.SessionID,
		string(d.Curriculum),
		d.FromLevel,
		d.ToLevel,
		criteriaJSON,
		resultsJSON,
		metricsJSON,
		d.Eligible,
		d.Confidence,
		string(d.Status),
		d.Reason,
		d.CreatedAt,
		d.ReviewedAt,
		d.ReviewedBy,
		d.ReviewNote,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
	}
	return nil
}

// Transition writes d's review fields only while the stored status is from.
func (r *DecisionRepository) Transition(ctx context.Context, d *promotion.Decision, from promotion.Status) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE promotion_decisions
		SET status = $2, reviewed_at = $3, reviewed_by = $4, review_note = $5
		WHERE id = $1 AND status = $6
	`, d.ID, string(d.Status), d.ReviewedAt, d.ReviewedBy, d.ReviewNote, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition decision %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDecisionNotPending
	}
	return nil
}

// GetByID returns a decision by ID.
func (r *DecisionRepository) GetByID(ctx context.Context, id string) (*promotion.Decision, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+decisionColumns+` FROM promotion_decisions WHERE id = $1`, id)
	d, err := scanDecision(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

// ListPending returns pending decisions, oldest first.
func (r *DecisionRepository) ListPending(ctx context.Context, trainerID string, limit int) ([]*promotion.Decision, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+decisionColumns+` FROM promotion_decisions
		WHERE status = 'pending' AND ($1 = '' OR trainer_id = $1)
		ORDER BY created_at
		LIMIT $2
	`, trainerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending decisions: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// ListByStudent returns a student's decisions, newest first.
func (r *DecisionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*promotion.Decision, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+decisionColumns+` FROM promotion_decisions
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query student decisions: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

func collectDecisions(rows pgx.Rows) ([]*promotion.Decision, error) {
	var out []*promotion.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return out, nil
}

func scanDecision(row pgx.Row) (*promotion.Decision, error) {
	var (
		d                                      promotion.Decision
		curriculum, status                     string
		criteriaJSON, resultsJSON, metricsJSON []byte
	)

	err := row.Scan(
		&d.ID,
		&d.StudentID,
		&d.TrainerID,
		&d.SessionID,
		&curriculum,
		&d.FromLevel,
		&d.ToLevel,
		&criteriaJSON,
		&resultsJSON,
		&metricsJSON,
		&d.Eligible,
		&d.Confidence,
		&status,
		&d.Reason,
		&d.CreatedAt,
		&d.ReviewedAt,
		&d.ReviewedBy,
		&d.ReviewNote,
	)
	if err != nil {
		return nil, err
	}

	d.Curriculum = shared.Curriculum(curriculum)
	d.Status = promotion.Status(status)

	if err := json.Unmarshal(criteriaJSON, &d.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &d.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criterion results: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &d.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	return &d, nil
}
