package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY REPOSITORY
// Students, trainers and current levels. Implements training.UserDirectory
// and promotion.LevelExecutor.
// ══════════════════════════════════════════════════════════════════════════════

// DirectoryRepository stores the student/trainer directory.
type DirectoryRepository struct {
	conn *Connection
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(conn *Connection) *DirectoryRepository {
	return &DirectoryRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

// GetStudent returns a student with current levels per curriculum.
func (r *DirectoryRepository) GetStudent(ctx context.Context, id string) (*training.Person, error) {
	var (
		p        training.Person
		ageGroup string
	)
	err := r.conn.QueryRow(ctx,
		`SELECT id, code, name, age_group FROM students WHERE id = $1`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &ageGroup)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	p.AgeGroup = shared.AgeGroup(ageGroup)

	levels, err := r.currentLevels(ctx, id)
	if err != nil {
		return nil, err
	}
	p.CurrentLevels = levels
	return &p, nil
}

// GetTrainer returns a trainer.
func (r *DirectoryRepository) GetTrainer(ctx context.Context, id string) (*training.Person, error) {
	var p training.Person
	err := r.conn.QueryRow(ctx, `SELECT id, name FROM trainers WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTrainerNotFound
		}
		return nil, fmt.Errorf("failed to get trainer: %w", err)
	}
	return &p, nil
}

func (r *DirectoryRepository) currentLevels(ctx context.Context, studentID string) (map[shared.Curriculum]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT curriculum, level FROM student_levels WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query student levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[shared.Curriculum]string)
	for rows.Next() {
		var curriculum, level string
		if err := rows.Scan(&curriculum, &level); err != nil {
			return nil, fmt.Errorf("failed to scan student level: %w", err)
		}
		levels[shared.Curriculum(curriculum)] = level
	}
	return levels, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// UpsertStudent creates or updates a student and their current levels.
func (r *DirectoryRepository) UpsertStudent(ctx context.Context, p *training.Person) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO students (id, code, name, age_group)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code,
				name = EXCLUDED.name,
				age_group = EXCLUDED.age_group,
				updated_at = NOW()
		`, p.ID, p.Code, p.Name, string(p.AgeGroup))
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.Errorf("training", "UpsertStudent", shared.ErrAlreadyExists, "student code %q is taken", p.Code)
			}
			return fmt.Errorf("failed to upsert student: %w", err)
		}

		for curriculum, level := range p.CurrentLevels {
			if err := setLevel(ctx, tx, p.ID, curriculum, level, time.Now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertTrainer creates or renames a trainer.
func (r *DirectoryRepository) UpsertTrainer(ctx context.Context, p *training.Person) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO trainers (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, p.ID, p.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert trainer: %w", err)
	}
	return nil
}

// ExecutePromotion moves the student to the next level and records history.
// Re-running the same decision is a no-op.
func (r *DirectoryRepository) ExecutePromotion(ctx context.Context, p promotion.Promotion) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO level_history (student_id, curriculum, from_level, to_level, decision_id, promoted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (decision_id) DO NOTHING
		`, p.StudentID, string(p.Curriculum), p.FromLevel, p.ToLevel, p.DecisionID, p.At)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrStudentNotFound
			}
			return fmt.Errorf("failed to record level history: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return setLevel(ctx, tx, p.StudentID, p.Curriculum, p.ToLevel, p.At)
	})
}

func setLevel(ctx context.Context, tx pgx.Tx, studentID string, c shared.Curriculum, level string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO student_levels (student_id, curriculum, level, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, curriculum) DO UPDATE SET
			level = EXCLUDED.level,
			updated_at = EXCLUDED.updated_at
	`, studentID, string(c), level, at)
	if err != nil {
		return fmt.Errorf("failed to set %s level: %w", c, err)
	}
	return nil
}
