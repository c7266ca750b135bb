// Package journal keeps an optional SQLite log of emitted stream events
// and window mode transitions for diagnostics. The daemon only writes to
// it; nothing is restored from it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Kind classifies an entry.
type Kind string

const (
	KindStroke     Kind = "stroke"
	KindForeground Kind = "foreground"
	KindMode       Kind = "mode"
	KindDropped    Kind = "dropped"
)

// Entry is one journal row.
type Entry struct {
	ID         int64           `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Kind       Kind            `json:"kind"`
	Channel    string          `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
	SessionID  string          `json:"session_id,omitempty"`
}

// Session is one daemon run.
type Session struct {
	ID        string
	PID       int
	Version   string
	Platform  string
	StartedAt time.Time
	StoppedAt *time.Time
}

// Store is the SQLite journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database answers a query.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&n)
}

// BeginSession records a daemon start and returns its id.
func (s *Store) BeginSession(version, platform string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, pid, version, platform, started_ms)
		VALUES (?, ?, ?, ?, ?)`,
		id, os.Getpid(), version, platform, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// EndSession marks a session stopped.
func (s *Store) EndSession(id string) error {
	result, err := s.db.Exec(`UPDATE sessions SET stopped_ms = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// LastSession returns the most recently started session, or nil.
func (s *Store) LastSession() (*Session, error) {
	var (
		sess    Session
		started int64
		stopped sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT id, pid, version, platform, started_ms, stopped_ms
		FROM sessions
		ORDER BY started_ms DESC
		LIMIT 1`,
	).Scan(&sess.ID, &sess.PID, &sess.Version, &sess.Platform, &started, &stopped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last session: %w", err)
	}
	sess.StartedAt = time.UnixMilli(started)
	if stopped.Valid {
		t := time.UnixMilli(stopped.Int64)
		sess.StoppedAt = &t
	}
	return &sess, nil
}

// Insert writes entries in one transaction.
func (s *Store) Insert(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO entries (recorded_ms, kind, channel, payload, session_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var session any
		if e.SessionID != "" {
			session = e.SessionID
		}
		if _, err := stmt.Exec(e.RecordedAt.UnixMilli(), string(e.Kind), e.Channel, string(e.Payload), session); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first. An empty kind matches
// every kind.
func (s *Store) Tail(n int, kind Kind) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, recorded_ms, kind, channel, payload, COALESCE(session_id, '')
		FROM (
			SELECT * FROM entries
			WHERE ? = '' OR kind = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC`, string(kind), string(kind), n,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			recorded int64
			kind     string
			payload  string
		)
		if err := rows.Scan(&e.ID, &recorded, &kind, &e.Channel, &payload, &e.SessionID); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recorded)
		e.Kind = Kind(kind)
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// removed.
func (s *Store) Prune(keep int64) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM entries
		WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM entries) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
