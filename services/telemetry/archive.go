package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Archive appends telemetry events to a local SQLite database so that crawl
// history survives restarts and can be queried from the API.
type Archive struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping telemetry archive: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		time    DATETIME NOT NULL,
		venue   TEXT,
		kind    TEXT NOT NULL,
		code    TEXT,
		period  TEXT,
		count   INTEGER,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	return &Archive{db: db}, nil
}

// Append writes one event.
func (a *Archive) Append(event Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT INTO events (time, venue, kind, code, period, count, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Time, event.Venue, string(event.Kind),
		event.Code, event.Period, event.Count, event.Message,
	)
	return err
}

// Recent returns the latest events, newest first.
func (a *Archive) Recent(limit int) ([]Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		`SELECT time, venue, kind, code, period, count, message
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts time.Time
		var kind string
		if err := rows.Scan(&ts, &e.Venue, &kind, &e.Code, &e.Period, &e.Count, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = ts
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
