package notify

import (
	"testing"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

func settingsFor(tz, at string) *model.NotificationSettings {
	return &model.NotificationSettings{UserID: "u1", Timezone: tz, NotificationTime: at}
}

func TestIsDueUTC(t *testing.T) {
	s := settingsFor("UTC", "12:00")

	before := time.Date(2026, 6, 10, 11, 59, 0, 0, time.UTC)
	due, err := IsDue(s, before)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if due {
		t.Error("11:59 should not be due for a 12:00 schedule")
	}

	exact := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	due, err = IsDue(s, exact)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if !due {
		t.Error("12:00 exactly should be due")
	}
}

func TestIsDueUsesUserTimezone(t *testing.T) {
	// 16:30 UTC is 11:30 in New York in January, so a 12:00 schedule is
	// not yet due there even though UTC is well past noon.
	s := settingsFor("America/New_York", "12:00")
	now := time.Date(2026, 1, 15, 16, 30, 0, 0, time.UTC)

	due, err := IsDue(s, now)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if due {
		t.Error("should not be due before local noon")
	}

	now = time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)
	due, err = IsDue(s, now)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if !due {
		t.Error("should be due at local noon")
	}
}

func TestIsDueSydneyAheadOfUTC(t *testing.T) {
	// 02:30 UTC on June 10 is already 12:30 on June 10 in Sydney.
	s := settingsFor("Australia/Sydney", "12:00")
	now := time.Date(2026, 6, 10, 2, 30, 0, 0, time.UTC)

	due, err := IsDue(s, now)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if !due {
		t.Error("Sydney afternoon should be due while UTC is still early morning")
	}
}

func TestIsDueDefaultsWhenUnset(t *testing.T) {
	s := &model.NotificationSettings{UserID: "u1"}
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	due, err := IsDue(s, now)
	if err != nil {
		t.Fatalf("IsDue: %v", err)
	}
	if !due {
		t.Error("unset settings should fall back to 12:00 UTC")
	}
}

func TestIsDueInvalidTimezone(t *testing.T) {
	s := settingsFor("Mars/Olympus_Mons", "12:00")
	if _, err := IsDue(s, time.Now()); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestDeliveredTodayNeverDelivered(t *testing.T) {
	s := settingsFor("UTC", "12:00")
	delivered, err := DeliveredToday(s, time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeliveredToday: %v", err)
	}
	if delivered {
		t.Error("nil LastDeliveredAt should report not delivered")
	}
}

func TestDeliveredTodayYesterday(t *testing.T) {
	s := settingsFor("UTC", "12:00")
	last := time.Date(2026, 6, 9, 12, 30, 0, 0, time.UTC)
	s.LastDeliveredAt = &last

	delivered, err := DeliveredToday(s, time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeliveredToday: %v", err)
	}
	if delivered {
		t.Error("yesterday's delivery should not count for today")
	}
}

func TestDeliveredTodayAfterScheduledTime(t *testing.T) {
	s := settingsFor("UTC", "12:00")
	last := time.Date(2026, 6, 10, 12, 5, 0, 0, time.UTC)
	s.LastDeliveredAt = &last

	delivered, err := DeliveredToday(s, time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeliveredToday: %v", err)
	}
	if !delivered {
		t.Error("delivery after today's scheduled time should count")
	}
}

func TestDeliveredTodayBeforeScheduledTime(t *testing.T) {
	// A stamp from earlier today but before the configured instant does
	// not settle the day; the user changed their schedule after delivery.
	s := settingsFor("UTC", "12:00")
	last := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
	s.LastDeliveredAt = &last

	delivered, err := DeliveredToday(s, time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeliveredToday: %v", err)
	}
	if delivered {
		t.Error("delivery stamped before the scheduled instant should not count")
	}
}

func TestDeliveredTodayLocalCalendarDay(t *testing.T) {
	// 23:30 UTC June 9 is already June 10 in Sydney. A delivery stamped
	// then counts for Sydney's June 10, so a later check the same Sydney
	// day must report delivered.
	s := settingsFor("Australia/Sydney", "08:00")
	last := time.Date(2026, 6, 9, 23, 30, 0, 0, time.UTC)
	s.LastDeliveredAt = &last

	delivered, err := DeliveredToday(s, time.Date(2026, 6, 10, 4, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeliveredToday: %v", err)
	}
	if !delivered {
		t.Error("delivery on the same Sydney calendar day should count")
	}
}
