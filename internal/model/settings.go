package model

import "time"

// DefaultNotificationTime is the daily digest time used when a user has
// not configured one.
const DefaultNotificationTime = "12:00"

// NotificationSettings holds a user's daily digest configuration.
// Timezone is an IANA zone id; empty means UTC. NotificationTime is a
// zero-padded 24h "HH:MM" string.
type NotificationSettings struct {
	UserID           string     `json:"user_id"`
	Timezone         string     `json:"timezone,omitempty"`
	NotificationTime string     `json:"notification_time,omitempty"`
	LastDeliveredAt  *time.Time `json:"last_delivered_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EffectiveTimezone returns the configured zone or "UTC".
func (s *NotificationSettings) EffectiveTimezone() string {
	if s.Timezone == "" {
		return "UTC"
	}
	return s.Timezone
}

// EffectiveNotificationTime returns the configured time or the default.
func (s *NotificationSettings) EffectiveNotificationTime() string {
	if s.NotificationTime == "" {
		return DefaultNotificationTime
	}
	return s.NotificationTime
}

// PushDevice is one registered web-push endpoint for a user.
type PushDevice struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}
