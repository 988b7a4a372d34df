package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	windowLayout = "2006-01-02T15:04:00"
	dayLayout    = "2006-01-02"

	ReasonPerMinute = "Too many requests, please try again later"
	ReasonPerDay    = "Daily request quota exhausted"
)

type RateResult struct {
	Allowed bool
	Reason  string
}

// CheckAndIncrement charges one request to identity's current minute window.
//
// The per-minute check compares the count that already exists, so a
// maxPerMinute of 0 still lets the first request of each window through.
func (s *Store) CheckAndIncrement(identity string, maxPerMinute, maxPerDay int) (RateResult, error) {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	now := s.nowUTC()
	window := now.Format(windowLayout)
	today := now.Format(dayLayout)

	var result RateResult
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var current int
		err = tx.QueryRow(
			`SELECT request_count FROM rate_limits WHERE identity = ? AND window_start = ?`,
			identity, window,
		).Scan(&current)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return err
		case current >= maxPerMinute:
			result = RateResult{Reason: ReasonPerMinute}
			return nil
		}

		var daily int
		if err := tx.QueryRow(
			`SELECT COALESCE(SUM(request_count), 0) FROM rate_limits WHERE identity = ? AND window_start >= ?`,
			identity, today,
		).Scan(&daily); err != nil {
			return err
		}
		if daily >= maxPerDay {
			result = RateResult{Reason: ReasonPerDay}
			return nil
		}

		if _, err := tx.Exec(
			`INSERT INTO rate_limits (identity, window_start, request_count) VALUES (?, ?, 1)
			 ON CONFLICT(identity, window_start) DO UPDATE SET request_count = request_count + 1`,
			identity, window,
		); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result = RateResult{Allowed: true}
		return nil
	})
	if err != nil {
		return RateResult{}, fmt.Errorf("checking rate limit: %w", err)
	}
	return result, nil
}

// CleanupRateLimits deletes windows that started more than a day ago.
func (s *Store) CleanupRateLimits() (int64, error) {
	cutoff := s.nowUTC().Add(-24 * time.Hour).Format(windowLayout)
	result, err := s.exec(`DELETE FROM rate_limits WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning rate limits: %w", err)
	}
	return result.RowsAffected()
}
