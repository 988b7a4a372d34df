package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID                string
	Identity          string
	ContinuationToken string
	CreatedAt         time.Time
	LastActive        time.Time
	MessageCount      int
}

// Expired reports whether the session has been idle for more than
// expireMinutes whole minutes as of now. A last-active time in the future
// is never expired.
func (s *Session) Expired(now time.Time, expireMinutes int) bool {
	idle := int64(now.Sub(s.LastActive) / time.Minute)
	return idle > int64(expireMinutes)
}

const sessionColumns = `id, identity, continuation_token, created_at, last_active, message_count`

// GetActiveSession returns the most recently active session for identity,
// or nil, nil when there is none.
func (s *Store) GetActiveSession(identity string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE identity = ?
		 ORDER BY last_active DESC, rowid DESC LIMIT 1`, identity,
	)
	return scanSession(row)
}

// CreateSession inserts a fresh session. An empty token is stored as NULL.
func (s *Store) CreateSession(identity, token string) (*Session, error) {
	now := s.nowUTC().Truncate(time.Second)
	sess := &Session{
		ID:                uuid.New().String(),
		Identity:          identity,
		ContinuationToken: token,
		CreatedAt:         now,
		LastActive:        now,
	}
	var tok sql.NullString
	if token != "" {
		tok = sql.NullString{String: token, Valid: true}
	}
	_, err := s.exec(
		`INSERT INTO sessions (id, identity, continuation_token, created_at, last_active, message_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		sess.ID, identity, tok, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// TouchSession advances last-active and increments the message count.
func (s *Store) TouchSession(id string) error {
	result, err := s.exec(
		`UPDATE sessions SET last_active = ?, message_count = message_count + 1 WHERE id = ?`,
		formatTime(s.nowUTC()), id,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return checkRowAffected(result, "session", id)
}

func (s *Store) SetContinuationToken(id, token string) error {
	result, err := s.exec(`UPDATE sessions SET continuation_token = ? WHERE id = ?`, token, id)
	if err != nil {
		return fmt.Errorf("setting continuation token: %w", err)
	}
	return checkRowAffected(result, "session", id)
}

// ClearSessions deletes every session of identity and returns how many
// were removed.
func (s *Store) ClearSessions(identity string) (int64, error) {
	result, err := s.exec(`DELETE FROM sessions WHERE identity = ?`, identity)
	if err != nil {
		return 0, fmt.Errorf("clearing sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteSessionsOlderThan removes the sessions Expired reports for
// minutes: idle for more than minutes whole minutes.
func (s *Store) DeleteSessionsOlderThan(minutes int) (int64, error) {
	cutoff := s.nowUTC().Add(-time.Duration(minutes+1) * time.Minute)
	result, err := s.exec(`DELETE FROM sessions WHERE last_active <= ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func scanSession(row scannable) (*Session, error) {
	var sess Session
	var token sql.NullString
	var createdAt, lastActive string
	err := row.Scan(&sess.ID, &sess.Identity, &token, &createdAt, &lastActive, &sess.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.ContinuationToken = token.String
	sess.CreatedAt = parseTime(createdAt)
	sess.LastActive = parseTime(lastActive)
	return &sess, nil
}
