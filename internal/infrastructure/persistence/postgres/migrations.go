package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status reports which migrations are applied.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_directory", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_training_sessions", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_promotion_decisions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS, TRAINERS, LEVELS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    code VARCHAR(50) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL,
    age_group VARCHAR(20) NOT NULL DEFAULT 'junior',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_age_group CHECK (age_group IN ('kids', 'junior', 'teen', 'adult'))
);

CREATE TABLE IF NOT EXISTS trainers (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Current level per curriculum
CREATE TABLE IF NOT EXISTS student_levels (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    curriculum VARCHAR(20) NOT NULL,
    level VARCHAR(50) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (student_id, curriculum)
);

CREATE TABLE IF NOT EXISTS level_history (
    id BIGSERIAL PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    curriculum VARCHAR(20) NOT NULL,
    from_level VARCHAR(50) NOT NULL,
    to_level VARCHAR(50) NOT NULL,
    decision_id TEXT NOT NULL UNIQUE,
    promoted_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_level_history_student ON level_history(student_id, promoted_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS level_history;
DROP TABLE IF EXISTS student_levels;
DROP TABLE IF EXISTS trainers;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: TRAINING SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS training_sessions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    trainer_id TEXT,
    curriculum VARCHAR(20) NOT NULL,
    level VARCHAR(50) NOT NULL,
    age_group VARCHAR(20) NOT NULL,
    session_type VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL,
    current_index INTEGER NOT NULL DEFAULT 0,

    -- Exercise history is append-only and always read as a whole
    exercises JSONB NOT NULL,
    settings JSONB NOT NULL,
    difficulty JSONB NOT NULL DEFAULT '{}'::jsonb,

    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    paused_at TIMESTAMP WITH TIME ZONE,
    pause_reason TEXT NOT NULL DEFAULT '',
    pause_offset_ms BIGINT NOT NULL DEFAULT 0,
    ended_at TIMESTAMP WITH TIME ZONE,
    last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL,

    correct_answers INTEGER NOT NULL DEFAULT 0,
    incorrect_answers INTEGER NOT NULL DEFAULT 0,
    skipped_questions INTEGER NOT NULL DEFAULT 0,
    accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_time DOUBLE PRECISION NOT NULL DEFAULT 0,
    completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,

    result VARCHAR(30) NOT NULL DEFAULT '',
    completion_reason VARCHAR(30) NOT NULL DEFAULT '',
    trainer_notes TEXT NOT NULL DEFAULT '',
    annotated_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_session_status CHECK (status IN ('active', 'paused', 'completed')),
    CONSTRAINT valid_counters CHECK (correct_answers + incorrect_answers + skipped_questions = current_index)
);

CREATE INDEX IF NOT EXISTS idx_sessions_history
    ON training_sessions(student_id, curriculum, level, ended_at DESC)
    WHERE status = 'completed';
CREATE INDEX IF NOT EXISTS idx_sessions_unfinished
    ON training_sessions(status)
    WHERE status <> 'completed';
CREATE INDEX IF NOT EXISTS idx_sessions_trainer ON training_sessions(trainer_id, started_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS training_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROMOTION DECISIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS promotion_decisions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    trainer_id TEXT,
    session_id TEXT NOT NULL,
    curriculum VARCHAR(20) NOT NULL,
    from_level VARCHAR(50) NOT NULL,
    to_level VARCHAR(50) NOT NULL DEFAULT '',

    -- Criteria are copied so later table changes never alter a decision
    criteria JSONB NOT NULL,
    results JSONB NOT NULL,
    metrics JSONB NOT NULL,

    eligible BOOLEAN NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    reviewed_at TIMESTAMP WITH TIME ZONE,
    reviewed_by TEXT NOT NULL DEFAULT '',
    review_note TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_decision_status CHECK (
        status IN ('not_eligible', 'pending', 'auto_approved', 'approved', 'rejected')
    )
);

CREATE INDEX IF NOT EXISTS idx_decisions_pending
    ON promotion_decisions(trainer_id, created_at)
    WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_decisions_student ON promotion_decisions(student_id, created_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS promotion_decisions;
`
