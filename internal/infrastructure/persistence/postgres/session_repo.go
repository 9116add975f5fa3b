package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements training.SessionRepository for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

const sessionColumns = `
	id, student_id, COALESCE(trainer_id, ''), curriculum, level, age_group, session_type,
	status, current_index, exercises, settings, difficulty,
	started_at, paused_at, pause_reason, pause_offset_ms, ended_at, last_activity_at,
	correct_answers, incorrect_answers, skipped_questions,
	accuracy, average_time, completion_rate,
	result, completion_reason, trainer_notes, annotated_at, updated_at
`

// Save upserts the whole session row, exercises included. The update only
// applies while the stored row is unfinished and not newer than s, so a late
// snapshot can never roll a completed session back. Trainer notes are owned
// by Annotate and never overwritten here.
func (r *SessionRepository) Save(ctx context.Context, s *training.Session) error {
	query := `
		INSERT INTO training_sessions (
			id, student_id, trainer_id, curriculum, level, age_group, session_type,
			status, current_index, exercises, settings, difficulty,
			started_at, paused_at, pause_reason, pause_offset_ms, ended_at, last_activity_at,
			correct_answers, incorrect_answers, skipped_questions,
			accuracy, average_time, completion_rate,
			result, completion_reason, trainer_notes, annotated_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21,
			$22, $23, $24,
			$25, $26, $27, $28, $29
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_index = EXCLUDED.current_index,
			exercises = EXCLUDED.exercises,
			settings = EXCLUDED.settings,
			difficulty = EXCLUDED.difficulty,
			paused_at = EXCLUDED.paused_at,
			pause_reason = EXCLUDED.pause_reason,
			pause_offset_ms = EXCLUDED.pause_offset_ms,
			ended_at = EXCLUDED.ended_at,
			last_activity_at = EXCLUDED.last_activity_at,
			correct_answers = EXCLUDED.correct_answers,
			incorrect_answers = EXCLUDED.incorrect_answers,
			skipped_questions = EXCLUDED.skipped_questions,
			accuracy = EXCLUDED.accuracy,
			average_time = EXCLUDED.average_time,
			completion_rate = EXCLUDED.completion_rate,
			result = EXCLUDED.result,
			completion_reason = EXCLUDED.completion_reason,
			updated_at = EXCLUDED.updated_at
		WHERE training_sessions.status <> 'completed'
			AND training_sessions.updated_at <= EXCLUDED.updated_at
	`

	exercisesJSON, err := json.Marshal(s.Exercises)
	if err != nil {
		return fmt.Errorf("failed to marshal exercises: %w", err)
	}
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	difficultyJSON, err := json.Marshal(s.Difficulty)
	if err != nil {
		return fmt.Errorf("failed to marshal difficulty: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query,
		s.ID,
		s.StudentID,
		s.TrainerID,
		string(s.Curriculum),
		s.Level,
		string(s.AgeGroup),
		string(s.SessionType),
		string(s.Status),
		s.CurrentIndex,
		exercisesJSON,
		settingsJSON,
		difficultyJSON,
		s.StartedAt,
		s.PausedAt,
		s.PauseReason,
		s.PauseOffset.Milliseconds(),
		s.EndedAt,
		s.LastActivityAt,
		s.CorrectAnswers,
		s.IncorrectAnswers,
		s.SkippedQuestions,
		s.Accuracy,
		s.AverageTimePerQuestion,
		s.CompletionRate,
		string(s.Result),
		s.CompletionReason,
		s.TrainerNotes,
		s.AnnotatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleSession
	}
	return nil
}

// Annotate stores trainer notes on a completed session.
func (r *SessionRepository) Annotate(ctx context.Context, id, notes string, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE training_sessions
		SET trainer_notes = $2, annotated_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'completed'
	`, id, notes, at)
	if err != nil {
		return fmt.Errorf("failed to annotate session %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM training_sessions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check session %s: %w", id, err)
	}
	if !exists {
		return shared.ErrSessionNotFound
	}
	return shared.ErrSessionNotCompleted
}

// GetByID returns a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*training.Session, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM training_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// FindRecent returns completed sessions at the student's level, newest first.
func (r *SessionRepository) FindRecent(ctx context.Context, q training.RecentQuery) ([]*training.Session, error) {
	var (
		conditions = []string{"status = 'completed'", "student_id = $1", "curriculum = $2", "level = $3"}
		args       = []interface{}{q.StudentID, string(q.Curriculum), q.Level}
	)

	if q.ExcludeID != "" {
		args = append(args, q.ExcludeID)
		conditions = append(conditions, fmt.Sprintf("id <> $%d", len(args)))
	}
	if q.Before != nil {
		args = append(args, *q.Before)
		conditions = append(conditions, fmt.Sprintf("ended_at < $%d", len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM training_sessions
		WHERE %s
		ORDER BY ended_at DESC, id
		LIMIT $%d
	`, sessionColumns, strings.Join(conditions, " AND "), len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// FindUnfinished returns active and paused sessions.
func (r *SessionRepository) FindUnfinished(ctx context.Context) ([]*training.Session, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+sessionColumns+` FROM training_sessions
		WHERE status <> 'completed'
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func collectSessions(rows pgx.Rows) ([]*training.Session, error) {
	var out []*training.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*training.Session, error) {
	var (
		s                                          training.Session
		curriculum, ageGroup, sessionType          string
		status, result                             string
		exercisesJSON, settingsJSON, difficultyRaw []byte
		pauseOffsetMs                              int64
	)

	err := row.Scan(
		&s.ID,
		&s.StudentID,
		&s.TrainerID,
		&curriculum,
		&s.Level,
		&ageGroup,
		&sessionType,
		&status,
		&s.CurrentIndex,
		&exercisesJSON,
		&settingsJSON,
		&difficultyRaw,
		&s.StartedAt,
		&s.PausedAt,
		&s.PauseReason,
		&pauseOffsetMs,
		&s.EndedAt,
		&s.LastActivityAt,
		&s.CorrectAnswers,
		&s.IncorrectAnswers,
		&s.SkippedQuestions,
		&s.Accuracy,
		&s.AverageTimePerQuestion,
		&s.CompletionRate,
		&result,
		&s.CompletionReason,
		&s.TrainerNotes,
		&s.AnnotatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Curriculum = shared.Curriculum(curriculum)
	s.AgeGroup = shared.AgeGroup(ageGroup)
	s.SessionType = shared.SessionType(sessionType)
	s.Status = training.Status(status)
	s.Result = training.ResultClass(result)
	s.PauseOffset = time.Duration(pauseOffsetMs) * time.Millisecond

	if err := json.Unmarshal(exercisesJSON, &s.Exercises); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exercises: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &s.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := json.Unmarshal(difficultyRaw, &s.Difficulty); err != nil {
		return nil, fmt.Errorf("failed to unmarshal difficulty: %w", err)
	}

	return &s, nil
}
