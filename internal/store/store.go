package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("not found")
)

// timeLayout is how every timestamp column is written. Lexical order matches
// chronological order as long as everything is stored in UTC.
const timeLayout = "2006-01-02 15:04:05"

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Store persists friends, sessions, the audit log and rate-limit windows.
type Store struct {
	db  *sql.DB
	now func() time.Time

	// rateMu serializes check-and-increment so two requests in the same
	// window cannot both observe the pre-increment count.
	rateMu sync.Mutex
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS friends (
	id          TEXT PRIMARY KEY,
	nickname    TEXT,
	remark_name TEXT,
	tier        TEXT NOT NULL DEFAULT 'normal'
	            CHECK (tier IN ('admin', 'trusted', 'normal', 'blocked', 'unknown')),
	added_at    TEXT NOT NULL,
	added_by    TEXT,
	notes       TEXT
);
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	identity           TEXT NOT NULL,
	continuation_token TEXT,
	created_at         TEXT NOT NULL,
	last_active        TEXT NOT NULL,
	message_count      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS audit_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	identity           TEXT NOT NULL,
	nickname           TEXT,
	direction          TEXT NOT NULL CHECK (direction IN ('in', 'out')),
	message            TEXT,
	continuation_token TEXT,
	timestamp          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rate_limits (
	identity      TEXT NOT NULL,
	window_start  TEXT NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (identity, window_start)
);
CREATE INDEX IF NOT EXISTS idx_audit_identity ON audit_log(identity);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity);
CREATE INDEX IF NOT EXISTS idx_rate_identity ON rate_limits(identity);
`

// DefaultMaxOpenConns is the default connection pool size.
const DefaultMaxOpenConns = 4

// dsnWithPragmas applies WAL, busy_timeout and perf pragmas to every new
// connection. PRAGMAs in the DSN are applied per-connection by the driver.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the store. maxOpenConns controls the connection pool size
// (0 = default). An in-memory database is pinned to a single connection,
// since each sqlite connection would otherwise see its own empty database.
func New(dbPath string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	if dbPath == ":memory:" {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the time source. Used by tests to pin "now".
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) nowUTC() time.Time {
	return s.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// exec runs a write statement with busy retry.
func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(query, args...)
		return e
	})
	return result, err
}

type scannable interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func checkRowAffected(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
