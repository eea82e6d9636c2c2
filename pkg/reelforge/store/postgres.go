package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE TABLE IF NOT EXISTS slots (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
`

// PostgresConfig holds connection tunables, mirroring the teacher's
// PostgreSQLConfig shape (dsn assembly, pool sizing).
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c PostgresConfig) effective() PostgresConfig {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// PostgresStore implements JobStore over PostgreSQL via the pgx
// stdlib-compatible driver, sharing the same database/sql-based query
// surface as SQLiteStore, with $N placeholders and JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a PostgreSQL-backed JobStore and applies the schema
// idempotently.
func OpenPostgres(cfg PostgresConfig) (*PostgresStore, error) {
	cfg = cfg.effective()

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING`); err != nil {
		db.Close()
		return nil, fmt.Errorf("record postgres schema version: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) UpsertJob(ctx context.Context, j job.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at
	`, j.ID, string(j.Status), raw, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (job.Job, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return job.Job{}, fmt.Errorf("%w: job %s", job.ErrNotFound, id)
	}
	if err != nil {
		return job.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var j job.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return job.Job{}, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	var rows *sql.Rows
	var err error
	if filter.Status != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM jobs WHERE status = $1 ORDER BY updated_at DESC`, string(*filter.Status))
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY updated_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		var j job.Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, fmt.Errorf("unmarshal job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) UpsertSlot(ctx context.Context, slot calendar.Slot) error {
	raw, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("marshal slot %s: %w", slot.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, slot.ID, raw)
	if err != nil {
		return fmt.Errorf("upsert slot %s: %w", slot.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListSlots(ctx context.Context) ([]calendar.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM slots`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []calendar.Slot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan slot row: %w", err)
		}
		var slot calendar.Slot
		if err := json.Unmarshal(raw, &slot); err != nil {
			return nil, fmt.Errorf("unmarshal slot row: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertSchedule(ctx context.Context, sched recurring.Schedule) error {
	raw, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal schedule %s: %w", sched.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, sched.ID, raw)
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", sched.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context) ([]recurring.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []recurring.Schedule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		var sched recurring.Schedule
		if err := json.Unmarshal(raw, &sched); err != nil {
			return nil, fmt.Errorf("unmarshal schedule row: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}
