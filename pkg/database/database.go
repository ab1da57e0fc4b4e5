// Package database provides the SQLite-backed session audit log: a
// record of who joined a session and when, and which buffers were shared
// or unshared — metadata about participation, never document content
// (spec.md's "no persistent storage" non-goal binds only the replica's
// text, not this bookkeeping).
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// JoinRecord is one audit-log entry for a site joining a session.
type JoinRecord struct {
	Session     string
	SiteID      uint16
	DisplayName string
	JoinedAt    time.Time
}

// Database wraps a SQLite connection holding the audit log.
type Database struct {
	db *sql.DB
}

// New creates a new database connection and runs migrations.
func New(uri string) (*Database, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// RecordJoin logs a site joining a session.
func (d *Database) RecordJoin(session string, siteID uint16, displayName string) error {
	_, err := d.db.Exec(
		`INSERT INTO session_events (session, kind, site_id, display_name, buffer, at)
		 VALUES (?, 'join', ?, ?, NULL, ?)`,
		session, siteID, displayName, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return nil
}

// RecordLeave logs a site leaving a session.
func (d *Database) RecordLeave(session string, siteID uint16) error {
	_, err := d.db.Exec(
		`INSERT INTO session_events (session, kind, site_id, display_name, buffer, at)
		 VALUES (?, 'leave', ?, NULL, NULL, ?)`,
		session, siteID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

// RecordShare logs a buffer being shared in a session.
func (d *Database) RecordShare(session, buffer string) error {
	_, err := d.db.Exec(
		`INSERT INTO session_events (session, kind, site_id, display_name, buffer, at)
		 VALUES (?, 'share', NULL, NULL, ?, ?)`,
		session, buffer, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record share: %w", err)
	}
	return nil
}

// RecordUnshare logs a buffer being unshared in a session.
func (d *Database) RecordUnshare(session, buffer string) error {
	_, err := d.db.Exec(
		`INSERT INTO session_events (session, kind, site_id, display_name, buffer, at)
		 VALUES (?, 'unshare', NULL, NULL, ?, ?)`,
		session, buffer, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record unshare: %w", err)
	}
	return nil
}

// Joins returns every join event recorded for a session, oldest first.
func (d *Database) Joins(session string) ([]JoinRecord, error) {
	rows, err := d.db.Query(
		`SELECT site_id, display_name, at FROM session_events
		 WHERE session = ? AND kind = 'join' ORDER BY at ASC`,
		session,
	)
	if err != nil {
		return nil, fmt.Errorf("query joins: %w", err)
	}
	defer rows.Close()

	var out []JoinRecord
	for rows.Next() {
		var r JoinRecord
		var at int64
		if err := rows.Scan(&r.SiteID, &r.DisplayName, &at); err != nil {
			return nil, fmt.Errorf("scan join: %w", err)
		}
		r.Session = session
		r.JoinedAt = time.Unix(at, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventCount returns the total number of audit events recorded, across
// all sessions.
func (d *Database) EventCount() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM session_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}
