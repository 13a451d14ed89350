package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the user's notification settings. A missing row yields
// defaults (UTC, 12:00, never delivered) rather than nil so callers need
// no special case; the row is created lazily on first write.
func (s *SettingsStore) Get(userID string) (*model.NotificationSettings, error) {
	var ns model.NotificationSettings
	var tz, notifTime sql.NullString
	var lastDelivered sql.NullTime

	err := s.db.QueryRow(
		`SELECT user_id, timezone, notification_time, last_delivered_at, updated_at
		 FROM notification_settings WHERE user_id = ?`, userID,
	).Scan(&ns.UserID, &tz, &notifTime, &lastDelivered, &ns.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.NotificationSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification settings: %w", err)
	}

	ns.Timezone = tz.String
	ns.NotificationTime = notifTime.String
	if lastDelivered.Valid {
		ns.LastDeliveredAt = &lastDelivered.Time
	}
	return &ns, nil
}

// Update upserts the user's timezone and notification time.
func (s *SettingsStore) Update(userID, timezone, notificationTime string) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_settings (user_id, timezone, notification_time, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   timezone = excluded.timezone,
		   notification_time = excluded.notification_time,
		   updated_at = excluded.updated_at`,
		userID, timezone, notificationTime,
	)
	if err != nil {
		return fmt.Errorf("update notification settings: %w", err)
	}
	return nil
}

// MarkDelivered records the digest delivery timestamp. The pipeline calls
// this exactly once per user per local calendar day.
func (s *SettingsStore) MarkDelivered(userID string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_settings (user_id, last_delivered_at, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   last_delivered_at = excluded.last_delivered_at,
		   updated_at = excluded.updated_at`,
		userID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}
