package notify

import (
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

// IsDue reports whether the user's configured daily notification time has
// passed in their own timezone. Both sides are zero-padded 24h "HH:MM"
// strings, so a lexicographic compare is an exact time compare.
func IsDue(settings *model.NotificationSettings, nowUTC time.Time) (bool, error) {
	loc, err := time.LoadLocation(settings.EffectiveTimezone())
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", settings.EffectiveTimezone(), err)
	}

	localClock := nowUTC.In(loc).Format("15:04")
	return localClock >= settings.EffectiveNotificationTime(), nil
}

// DeliveredToday reports whether a digest was already delivered on the
// user's current local calendar day. A delivery stamped earlier the same
// day but before today's configured instant does not count; delivery
// cannot normally happen before IsDue, so that clause is a guard against
// clock skew in stored timestamps rather than an expected path.
func DeliveredToday(settings *model.NotificationSettings, nowUTC time.Time) (bool, error) {
	if settings.LastDeliveredAt == nil {
		return false, nil
	}

	loc, err := time.LoadLocation(settings.EffectiveTimezone())
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", settings.EffectiveTimezone(), err)
	}

	localDate := nowUTC.In(loc).Format("2006-01-02")
	lastDate := settings.LastDeliveredAt.In(loc).Format("2006-01-02")
	if lastDate != localDate {
		return false, nil
	}

	scheduledAt, err := time.ParseInLocation(
		"2006-01-02 15:04",
		localDate+" "+settings.EffectiveNotificationTime(),
		loc,
	)
	if err != nil {
		return false, fmt.Errorf("parse notification time %q: %w", settings.EffectiveNotificationTime(), err)
	}

	return !settings.LastDeliveredAt.Before(scheduledAt), nil
}
