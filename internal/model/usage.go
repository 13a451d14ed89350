package model

import "time"

// UsageTracking meters assistant spend per user as a percentage of the
// rolling weekly budget. WeeklyPercentUsed is clamped to [0, 100];
// ResetDate marks the end of the current period.
type UsageTracking struct {
	UserID            string    `json:"user_id"`
	WeeklyPercentUsed float64   `json:"weekly_percent_used"`
	ResetDate         time.Time `json:"reset_date"`
	UpdatedAt         time.Time `json:"updated_at"`
}
