// Package journal records export-cycle history in a SQLite database.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"voice-slicer/internal/exporter"
)

// Entry is one recorded export cycle.
type Entry struct {
	ID        int64
	SessionID string
	Forced    bool
	Created   int
	Deleted   int
	Renamed   int
	Recreated int
	Skipped   int
	TiedKeys  int
	CreatedAt time.Time
}

// Journal appends export results to a SQLite file. Recording is best-effort
// bookkeeping: a failed insert must never fail the export that produced it,
// so callers log Record errors and move on.
type Journal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS export_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	forced     INTEGER NOT NULL,
	created    INTEGER NOT NULL,
	deleted    INTEGER NOT NULL,
	renamed    INTEGER NOT NULL,
	recreated  INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	tied_keys  INTEGER NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_export_history_session
	ON export_history (session_id, created_at DESC);
`

// Open opens (or creates) the journal database at path with WAL enabled.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one export cycle's outcome.
func (j *Journal) Record(sessionID string, forced bool, plan exporter.Plan) error {
	sum := plan.Summarize()
	_, err := j.db.Exec(`
		INSERT INTO export_history
			(session_id, forced, created, deleted, renamed, recreated, skipped, tied_keys, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, boolToInt(forced), sum.Created, sum.Deleted, sum.Renamed,
		sum.Recreated, sum.Skipped, len(plan.Tied),
		float64(time.Now().UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// Recent returns the latest export cycles for a session, newest first.
func (j *Journal) Recent(sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT id, session_id, forced, created, deleted, renamed, recreated, skipped, tied_keys, created_at
		FROM export_history
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query export history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var forced int
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.SessionID, &forced, &e.Created, &e.Deleted,
			&e.Renamed, &e.Recreated, &e.Skipped, &e.TiedKeys, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export history: %w", err)
		}
		e.Forced = forced != 0
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
