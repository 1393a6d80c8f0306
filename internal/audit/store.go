// ABOUTME: SQLite-backed audit log of AGI protocol history using modernc.org/sqlite.
// ABOUTME: Records verbs executed and their results, keyed by agi_uniqueid; never call business data.

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists a record of AGI commands executed per call. It holds
// protocol history only -- verb, result, duration, error -- never
// application-level call data.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one recorded command outcome.
type Entry struct {
	UniqueID   string
	Channel    string
	Command    string
	ResultCode int
	DurationMs int64
	Err        string
	At         time.Time
}

// Open creates or opens the audit database at path. ":memory:" is
// accepted for ephemeral/test use. The schema is created automatically;
// parent directories are created if needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating audit database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	logger.Info("audit store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS command_log (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueid     TEXT NOT NULL,
			channel      TEXT NOT NULL,
			command      TEXT NOT NULL,
			result_code  INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL,
			error        TEXT,
			at           DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_command_log_uniqueid ON command_log(uniqueid);
		CREATE INDEX IF NOT EXISTS idx_command_log_at ON command_log(at);

		CREATE TABLE IF NOT EXISTS session_log (
			uniqueid    TEXT PRIMARY KEY,
			channel     TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			ended_at    DATETIME,
			close_reason TEXT
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSessionStart inserts a session_log row for a newly ready channel.
func (s *Store) RecordSessionStart(ctx context.Context, uniqueID, channel string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_log (uniqueid, channel, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(uniqueid) DO NOTHING
	`, uniqueID, channel, at.UTC())
	if err != nil {
		return fmt.Errorf("recording session start: %w", err)
	}
	return nil
}

// RecordSessionEnd updates the session_log row with the close reason.
func (s *Store) RecordSessionEnd(ctx context.Context, uniqueID string, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_log SET ended_at = ?, close_reason = ? WHERE uniqueid = ?
	`, at.UTC(), reason, uniqueID)
	if err != nil {
		return fmt.Errorf("recording session end: %w", err)
	}
	return nil
}

// RecordCommand inserts one command_log row.
func (s *Store) RecordCommand(ctx context.Context, e Entry) error {
	errText := sql.NullString{}
	if e.Err != "" {
		errText = sql.NullString{String: e.Err, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_log (uniqueid, channel, command, result_code, duration_ms, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.UniqueID, e.Channel, e.Command, e.ResultCode, e.DurationMs, errText, e.At.UTC())
	if err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// CommandsForSession returns every recorded command for uniqueID in
// chronological order.
func (s *Store) CommandsForSession(ctx context.Context, uniqueID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uniqueid, channel, command, result_code, duration_ms, COALESCE(error, ''), at
		FROM command_log
		WHERE uniqueid = ?
		ORDER BY id ASC
	`, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UniqueID, &e.Channel, &e.Command, &e.ResultCode, &e.DurationMs, &e.Err, &e.At); err != nil {
			return nil, fmt.Errorf("scanning command log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
