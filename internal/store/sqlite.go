package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/reaper/internal/model"

	_ "modernc.org/sqlite"
)

const createReapsTable = `
CREATE TABLE IF NOT EXISTS reaps (
    id               TEXT PRIMARY KEY,
    run_id           TEXT NOT NULL,
    backend          TEXT NOT NULL,
    target           TEXT NOT NULL,
    pid              INTEGER,
    status           TEXT NOT NULL,
    error            TEXT NOT NULL DEFAULT '',
    soft_at          DATETIME,
    hard_at          DATETIME,
    cleanup_deadline DATETIME,
    commands         INTEGER NOT NULL DEFAULT 0,
    duration_ms      INTEGER,
    created_at       DATETIME NOT NULL,
    started_at       DATETIME,
    finished_at      DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS reap_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    reap_id    TEXT NOT NULL REFERENCES reaps(id),
    seq        INTEGER NOT NULL,
    phase      TEXT NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (reap_id, seq)
)`

const reapColumns = `id, run_id, backend, target, pid, status, error,
	soft_at, hard_at, cleanup_deadline, commands, duration_ms,
	created_at, started_at, finished_at`

// ErrNotFound is returned when a reap is not found.
var ErrNotFound = errors.New("reap not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createReapsTable, createEventsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReap(row rowScanner) (*model.Reap, error) {
	r := &model.Reap{}
	err := row.Scan(
		&r.ID, &r.RunID, &r.Backend, &r.Target, &r.PID, &r.Status, &r.Error,
		&r.SoftAt, &r.HardAt, &r.CleanupDeadline, &r.Commands, &r.DurationMS,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

// CreateReap inserts a new reap record.
func (s *SQLiteStore) CreateReap(ctx context.Context, r *model.Reap) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reaps (`+reapColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.Backend, r.Target, r.PID, r.Status, r.Error,
		r.SoftAt, r.HardAt, r.CleanupDeadline, r.Commands, r.DurationMS,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reap: %w", err)
	}
	return nil
}

// GetReap retrieves a reap by ID.
func (s *SQLiteStore) GetReap(ctx context.Context, id string) (*model.Reap, error) {
	r, err := scanReap(s.db.QueryRowContext(ctx,
		`SELECT `+reapColumns+` FROM reaps WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reap: %w", err)
	}
	return r, nil
}

// ListReaps returns a paginated list of reaps ordered by created_at DESC,
// along with the total count of all reaps.
func (s *SQLiteStore) ListReaps(ctx context.Context, limit, offset int) ([]*model.Reap, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reaps").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reaps: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+reapColumns+` FROM reaps ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reaps: %w", err)
	}
	defer rows.Close()

	var reaps []*model.Reap
	for rows.Next() {
		r, err := scanReap(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reap: %w", err)
		}
		reaps = append(reaps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reaps: %w", err)
	}

	return reaps, total, nil
}

// checkTransition loads the current status inside tx and validates the
// move to status. Writing the same status again is allowed.
func checkTransition(ctx context.Context, tx *sql.Tx, id, status string) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT status FROM reaps WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read reap status: %w", err)
	}
	if current != status && !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}
	return nil
}

// UpdateReapStatus moves a reap to status. Entering running sets
// started_at; entering a terminal status sets finished_at.
func (s *SQLiteStore) UpdateReapStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, id, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE reaps SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?",
			status, now, id,
		)
	case model.IsTerminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE reaps SET status = ?, finished_at = ? WHERE id = ?",
			status, now, id,
		)
	default:
		_, err = tx.ExecContext(ctx, "UPDATE reaps SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update reap status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// UpdateReap writes the mutable fields of r. The status change, if any, is
// validated like UpdateReapStatus. Nil time fields leave the stored value
// unchanged.
func (s *SQLiteStore) UpdateReap(ctx context.Context, r *model.Reap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, r.ID, r.Status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reaps SET
			status = ?,
			error = ?,
			soft_at = COALESCE(?, soft_at),
			hard_at = COALESCE(?, hard_at),
			cleanup_deadline = COALESCE(?, cleanup_deadline),
			commands = ?,
			duration_ms = COALESCE(?, duration_ms),
			started_at = COALESCE(?, started_at),
			finished_at = COALESCE(?, finished_at)
		WHERE id = ?`,
		r.Status, r.Error, r.SoftAt, r.HardAt, r.CleanupDeadline, r.Commands,
		r.DurationMS, r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reap: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reap update: %w", err)
	}
	return nil
}

// GetReapStats aggregates counts by status and backend and the mean
// duration of finished reaps.
func (s *SQLiteStore) GetReapStats(ctx context.Context) (*ReapStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &ReapStats{
		CountByStatus:  make(map[string]int),
		CountByBackend: make(map[string]int),
	}

	if err := groupCounts(ctx, tx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := groupCounts(ctx, tx, "backend", stats.CountByBackend); err != nil {
		return nil, err
	}
	for status, n := range stats.CountByStatus {
		stats.Total += n
		if !model.IsTerminal(status) {
			stats.Active += n
		}
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM reaps WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	return stats, nil
}

func groupCounts(ctx context.Context, tx *sql.Tx, column string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM reaps GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}

// InsertEvent appends an event and fills in its ID and, if unset, CreatedAt.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reap_events (reap_id, seq, phase, line, created_at) VALUES (?, ?, ?, ?, ?)",
		ev.ReapID, ev.Seq, ev.Phase, ev.Line, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	ev.ID = id
	return nil
}

// GetEvents returns all events for a reap in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, reapID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, reap_id, seq, phase, line, created_at FROM reap_events WHERE reap_id = ? ORDER BY seq",
		reapID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.ReapID, &ev.Seq, &ev.Phase, &ev.Line, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
