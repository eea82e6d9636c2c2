package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

// sqliteSchema creates the three logical collections as JSON-blob rows
// keyed by id, the same "row holds the full record" shape the spec
// prescribes (§6, Persisted state) and the teacher's own
// schema_version-gated CREATE TABLE IF NOT EXISTS idiom.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE TABLE IF NOT EXISTS slots (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// SQLiteStore implements JobStore over a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig holds SQLite-specific tunables, mirroring the teacher's
// database.SQLiteConfig shape.
type SQLiteConfig struct {
	Path        string
	JournalMode string
	BusyTimeout int
	ForeignKeys bool
}

func (c SQLiteConfig) effective() SQLiteConfig {
	if c.Path == "" {
		c.Path = "./data/reelforge.db"
	}
	if c.JournalMode == "" {
		c.JournalMode = "WAL"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5000
	}
	return c
}

// OpenSQLite opens or creates a SQLite-backed JobStore, applying the
// schema idempotently.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	cfg = cfg.effective()

	dir := filepath.Dir(cfg.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	if cfg.ForeignKeys {
		dsn += "&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	if _, err := db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("record sqlite schema version: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, j job.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at
	`, j.ID, string(j.Status), raw, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (job.Job, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return job.Job{}, fmt.Errorf("%w: job %s", job.ErrNotFound, id)
	}
	if err != nil {
		return job.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var j job.Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return job.Job{}, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	var rows *sql.Rows
	var err error
	if filter.Status != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM jobs WHERE status = ? ORDER BY updated_at DESC`, string(*filter.Status))
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY updated_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		var j job.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			return nil, fmt.Errorf("unmarshal job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSlot(ctx context.Context, slot calendar.Slot) error {
	raw, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("marshal slot %s: %w", slot.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, slot.ID, raw)
	if err != nil {
		return fmt.Errorf("upsert slot %s: %w", slot.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSlots(ctx context.Context) ([]calendar.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM slots`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []calendar.Slot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan slot row: %w", err)
		}
		var slot calendar.Slot
		if err := json.Unmarshal([]byte(raw), &slot); err != nil {
			return nil, fmt.Errorf("unmarshal slot row: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertSchedule(ctx context.Context, sched recurring.Schedule) error {
	raw, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal schedule %s: %w", sched.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, sched.ID, raw)
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", sched.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]recurring.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []recurring.Schedule
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		var sched recurring.Schedule
		if err := json.Unmarshal([]byte(raw), &sched); err != nil {
			return nil, fmt.Errorf("unmarshal schedule row: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}
