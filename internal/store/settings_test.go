package store

import (
	"testing"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

func TestSettingsDefaultsWhenMissing(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSettingsStore(db)

	settings, err := ss.Get(userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings == nil {
		t.Fatal("expected defaults, got nil")
	}
	if settings.EffectiveTimezone() != "UTC" {
		t.Errorf("timezone = %q, want UTC", settings.EffectiveTimezone())
	}
	if settings.EffectiveNotificationTime() != model.DefaultNotificationTime {
		t.Errorf("time = %q, want %q", settings.EffectiveNotificationTime(), model.DefaultNotificationTime)
	}
	if settings.LastDeliveredAt != nil {
		t.Error("expected no delivery stamp")
	}
}

func TestSettingsUpdateUpsert(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSettingsStore(db)

	if err := ss.Update(userID, "Australia/Sydney", "08:30"); err != nil {
		t.Fatalf("update: %v", err)
	}
	settings, err := ss.Get(userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.Timezone != "Australia/Sydney" || settings.NotificationTime != "08:30" {
		t.Errorf("settings = %+v", settings)
	}

	if err := ss.Update(userID, "Europe/Berlin", "09:00"); err != nil {
		t.Fatalf("second update: %v", err)
	}
	settings, _ = ss.Get(userID)
	if settings.Timezone != "Europe/Berlin" || settings.NotificationTime != "09:00" {
		t.Errorf("settings = %+v, want overwritten values", settings)
	}
}

func TestSettingsMarkDelivered(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSettingsStore(db)

	// MarkDelivered must work even before the user ever saved settings.
	at := time.Date(2026, 6, 10, 12, 5, 0, 0, time.UTC)
	if err := ss.MarkDelivered(userID, at); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	settings, err := ss.Get(userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.LastDeliveredAt == nil || !settings.LastDeliveredAt.Equal(at) {
		t.Errorf("last delivered = %v, want %v", settings.LastDeliveredAt, at)
	}

	// A later delivery overwrites the stamp without touching the
	// configured schedule.
	if err := ss.Update(userID, "UTC", "07:00"); err != nil {
		t.Fatalf("update: %v", err)
	}
	next := at.AddDate(0, 0, 1)
	if err := ss.MarkDelivered(userID, next); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	settings, _ = ss.Get(userID)
	if !settings.LastDeliveredAt.Equal(next) {
		t.Errorf("last delivered = %v, want %v", settings.LastDeliveredAt, next)
	}
	if settings.NotificationTime != "07:00" {
		t.Errorf("notification time = %q, want preserved", settings.NotificationTime)
	}
}
