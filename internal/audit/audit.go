// Package audit records command executions in SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry represents a single execution record.
type Entry struct {
	Timestamp  time.Time
	Source     string // "cli" or "telegram"
	ChatID     int64
	Username   string
	CommandID  string
	Rendered   string
	Workdir    string
	ExitCode   int
	DurationMs int64
}

// Logger persists execution records.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// SQLiteLogger implements Logger using SQLite.
type SQLiteLogger struct {
	db *sql.DB
}

// NewSQLiteLogger creates a logger backed by SQLite.
func NewSQLiteLogger(dbPath string) (*SQLiteLogger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the CLI read history while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLogger{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			source TEXT NOT NULL,
			chat_id INTEGER,
			username TEXT,
			command_id TEXT NOT NULL,
			rendered TEXT NOT NULL,
			workdir TEXT,
			exit_code INTEGER,
			duration_ms INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp);
		CREATE INDEX IF NOT EXISTS idx_executions_command ON executions(command_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Log records a command execution.
func (l *SQLiteLogger) Log(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO executions (timestamp, source, chat_id, username, command_id, rendered, workdir, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		entry.Timestamp.UTC(),
		entry.Source,
		entry.ChatID,
		entry.Username,
		entry.CommandID,
		entry.Rendered,
		entry.Workdir,
		entry.ExitCode,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT timestamp, source, chat_id, username, command_id, rendered, workdir, exit_code, duration_ms
		FROM executions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			username sql.NullString
			workdir  sql.NullString
		)
		if err := rows.Scan(&e.Timestamp, &e.Source, &e.ChatID, &username, &e.CommandID,
			&e.Rendered, &workdir, &e.ExitCode, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Username = username.String
		e.Workdir = workdir.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}

	return entries, nil
}

// Close releases database resources.
func (l *SQLiteLogger) Close() error {
	return l.db.Close()
}

// NopLogger is a no-op logger for testing or when history is disabled.
type NopLogger struct{}

// Log does nothing.
func (NopLogger) Log(ctx context.Context, entry Entry) error {
	return nil
}

// Recent returns nothing.
func (NopLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return nil, nil
}

// Close does nothing.
func (NopLogger) Close() error {
	return nil
}
