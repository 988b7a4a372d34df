package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type AuditEntry struct {
	ID                int64
	Identity          string
	Nickname          string
	Direction         Direction
	Message           string
	ContinuationToken string
	Timestamp         time.Time
}

func (s *Store) AppendAudit(identity, nickname string, dir Direction, message, token string) error {
	_, err := s.exec(
		`INSERT INTO audit_log (identity, nickname, direction, message, continuation_token, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		identity, emptyToNull(nickname), string(dir), emptyToNull(message), emptyToNull(token),
		formatTime(s.nowUTC()),
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AuditByIdentity returns up to limit entries for identity, newest first.
func (s *Store) AuditByIdentity(identity string, limit int) ([]*AuditEntry, error) {
	return s.queryAudit(
		`SELECT id, identity, nickname, direction, message, continuation_token, timestamp
		 FROM audit_log WHERE identity = ? ORDER BY id DESC LIMIT ?`, identity, limit,
	)
}

// RecentAudit returns up to limit entries across all identities, newest first.
func (s *Store) RecentAudit(limit int) ([]*AuditEntry, error) {
	return s.queryAudit(
		`SELECT id, identity, nickname, direction, message, continuation_token, timestamp
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
}

func (s *Store) queryAudit(query string, args ...any) ([]*AuditEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var nickname, message, token sql.NullString
		var dir, ts string
		if err := rows.Scan(&e.ID, &e.Identity, &nickname, &dir, &message, &token, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Nickname = nickname.String
		e.Direction = Direction(dir)
		e.Message = message.String
		e.ContinuationToken = token.String
		e.Timestamp = parseTime(ts)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}

func emptyToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
