package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Get(userID string) (*model.UsageTracking, error) {
	var u model.UsageTracking
	err := s.db.QueryRow(
		`SELECT user_id, weekly_percent_used, reset_date, updated_at
		 FROM usage_tracking WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &u.WeeklyPercentUsed, &u.ResetDate, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage tracking: %w", err)
	}
	return &u, nil
}

// Create initializes a fresh tracking record with zero usage.
func (s *UsageStore) Create(userID string, resetDate time.Time) (*model.UsageTracking, error) {
	_, err := s.db.Exec(
		`INSERT INTO usage_tracking (user_id, weekly_percent_used, reset_date) VALUES (?, 0, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, resetDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create usage tracking: %w", err)
	}
	return s.Get(userID)
}

// Reset zeroes the percent and moves the period end to resetDate.
func (s *UsageStore) Reset(userID string, resetDate time.Time) error {
	_, err := s.db.Exec(
		`UPDATE usage_tracking
		 SET weekly_percent_used = 0, reset_date = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`,
		resetDate.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("reset usage tracking: %w", err)
	}
	return nil
}

// AddPercent adds delta to the weekly percent, clamping at 100, and
// returns the new value. The add happens in a single statement so
// concurrent chat requests cannot push the stored value past the clamp,
// though the caller's read-compute-write of the cost itself is unguarded.
func (s *UsageStore) AddPercent(userID string, delta float64) (float64, error) {
	_, err := s.db.Exec(
		`UPDATE usage_tracking
		 SET weekly_percent_used = MIN(100, weekly_percent_used + ?), updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`,
		delta, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("add usage percent: %w", err)
	}

	var percent float64
	err = s.db.QueryRow(
		`SELECT weekly_percent_used FROM usage_tracking WHERE user_id = ?`, userID,
	).Scan(&percent)
	if err != nil {
		return 0, fmt.Errorf("read usage percent: %w", err)
	}
	return percent, nil
}
