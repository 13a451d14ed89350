package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/notify"
	"github.com/dukerupert/tilly/internal/push"
	"github.com/dukerupert/tilly/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []push.Payload
}

func (s *recordingSender) Send(device model.PushDevice, payload push.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

type cronResult struct {
	UserID            string `json:"userID"`
	NotificationCount int    `json:"notificationCount"`
	Success           bool   `json:"success"`
}

type cronResponse struct {
	Message string       `json:"message"`
	Results []cronResult `json:"results"`
}

// newCronServer wires the delivery pipeline against a real database and a
// recording sender, behind the shared-secret gate, the way the router
// assembles it.
func newCronServer(t *testing.T, db *sql.DB, sender notify.Sender, at time.Time) http.Handler {
	t.Helper()

	runner := notify.NewRunner(
		store.NewRegistryStore(db),
		store.NewSettingsStore(db),
		store.NewPersonStore(db),
		store.NewDeviceStore(db),
		sender,
		discardLogger(),
	)
	runner.SetClock(func() time.Time { return at })

	h := NewCronHandler(runner, discardLogger())
	return middleware.RequireCronSecret("cron-secret")(http.HandlerFunc(h.DeliverNotifications))
}

func cronRequest(secret string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cron/deliver-notifications", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestCronDeliversDueReminders(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "cron@example.com")

	// 13:00 UTC, past the default 12:00 notification time.
	now := time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC)

	person, err := store.NewPersonStore(db).Create(userID, "Alice", "")
	if err != nil {
		t.Fatal(err)
	}
	reminders := store.NewReminderStore(db)
	if _, err := reminders.Create(person.ID, "birthday card", "2026-06-10", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := reminders.Create(person.ID, "call back", "2026-06-01", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.NewDeviceStore(db).Upsert(userID, "https://push.example/ep1", "p256dh", "auth", "phone"); err != nil {
		t.Fatal(err)
	}
	if err := store.NewRegistryStore(db).Register(userID); err != nil {
		t.Fatal(err)
	}

	sender := &recordingSender{}
	srv := newCronServer(t, db, sender, now)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, cronRequest("cron-secret"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp cronResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "notification delivery completed" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	got := resp.Results[0]
	if got.UserID != userID || got.NotificationCount != 2 || !got.Success {
		t.Errorf("result = %+v", got)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d payloads, want 1", len(sender.sent))
	}
	if sender.sent[0].Title != "You have 2 reminders due today" {
		t.Errorf("payload title = %q", sender.sent[0].Title)
	}
}

func TestCronSecondRunSameDayIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "cron@example.com")
	now := time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC)

	person, err := store.NewPersonStore(db).Create(userID, "Alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.NewReminderStore(db).Create(person.ID, "birthday card", "2026-06-10", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.NewDeviceStore(db).Upsert(userID, "https://push.example/ep1", "p256dh", "auth", "phone"); err != nil {
		t.Fatal(err)
	}
	if err := store.NewRegistryStore(db).Register(userID); err != nil {
		t.Fatal(err)
	}

	sender := &recordingSender{}
	srv := newCronServer(t, db, sender, now)

	srv.ServeHTTP(httptest.NewRecorder(), cronRequest("cron-secret"))

	// An hour later the cron fires again; the user was already served.
	srvLater := newCronServer(t, db, sender, now.Add(time.Hour))
	rec := httptest.NewRecorder()
	srvLater.ServeHTTP(rec, cronRequest("cron-secret"))

	var resp cronResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("second run results = %d, want 0 (skipped)", len(resp.Results))
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d payloads across both runs, want 1", len(sender.sent))
	}
}

func TestCronNoRegisteredUsers(t *testing.T) {
	db := setupTestDB(t)
	sender := &recordingSender{}
	srv := newCronServer(t, db, sender, time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, cronRequest("cron-secret"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp cronResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %d, want 0", len(resp.Results))
	}
}

func TestCronRejectsBadSecret(t *testing.T) {
	db := setupTestDB(t)
	srv := newCronServer(t, db, &recordingSender{}, time.Now())

	for _, secret := range []string{"", "wrong-secret"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, cronRequest(secret))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", secret, rec.Code)
		}
	}
}
