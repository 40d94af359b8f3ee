// Package journal keeps a SQLite history of every command the host tried
// to send to the arm, including the ones that never reached the wire.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status of a journal entry
const (
	StatusSent        = "sent"
	StatusFailed      = "failed"
	StatusUnreachable = "unreachable"
	StatusCancelled   = "cancelled"
)

// Source of a journal entry
const (
	SourceMove     = "move"
	SourceAngles   = "angles"
	SourcePlayback = "playback"
)

// Entry is one recorded command attempt
type Entry struct {
	ID        int64
	Time      time.Time
	Playback  string // Playback ID, empty outside playback
	Source    string
	HasTarget bool // False for direct angle commands
	X, Y      float64
	Theta1    float64
	Theta2    float64
	Line      string // Encoded command, empty if nothing was encoded
	Status    string
	Error     string
}

// Journal is a SQLite-backed command history
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
// Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at  INTEGER NOT NULL,
			playback    TEXT,
			source      TEXT NOT NULL,
			x           DOUBLE,
			y           DOUBLE,
			theta1      DOUBLE,
			theta2      DOUBLE,
			line        TEXT,
			status      TEXT NOT NULL,
			error       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_commands_playback ON commands(playback);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends an entry. A zero Time is replaced with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var x, y sql.NullFloat64
	if e.HasTarget {
		x = sql.NullFloat64{Float64: e.X, Valid: true}
		y = sql.NullFloat64{Float64: e.Y, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands (created_at, playback, source, x, y, theta1, theta2, line, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixNano(), e.Playback, e.Source, x, y, e.Theta1, e.Theta2, e.Line, e.Status, e.Error)
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, playback, source, x, y, theta1, theta2, line, status, error
		FROM commands
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ForPlayback returns the entries recorded by one playback, oldest first
func (j *Journal) ForPlayback(ctx context.Context, playback string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, playback, source, x, y, theta1, theta2, line, status, error
		FROM commands
		WHERE playback = ?
		ORDER BY id ASC`, playback)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			nanos    int64
			playback sql.NullString
			x, y     sql.NullFloat64
			t1, t2   sql.NullFloat64
			line     sql.NullString
			errText  sql.NullString
		)
		err := rows.Scan(&e.ID, &nanos, &playback, &e.Source, &x, &y,
			&t1, &t2, &line, &e.Status, &errText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		e.Time = time.Unix(0, nanos)
		e.Playback = playback.String
		e.HasTarget = x.Valid && y.Valid
		e.X, e.Y = x.Float64, y.Float64
		e.Theta1, e.Theta2 = t1.Float64, t2.Float64
		e.Line = line.String
		e.Error = errText.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
