package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/tilly/internal/database"
	"github.com/dukerupert/tilly/internal/store"
)

func okHandler(t *testing.T, gotUserID *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotUserID != nil {
			*gotUserID = UserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireCronSecret(t *testing.T) {
	wrapped := RequireCronSecret("topsecret")(okHandler(t, nil))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer topsecret", http.StatusOK},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic topsecret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cron/deliver-notifications", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireCronSecretEmptySecretAlwaysRejects(t *testing.T) {
	wrapped := RequireCronSecret("")(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no secret is configured", rec.Code)
	}
}

func TestRequireSession(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := store.NewUserStore(db).Create("", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sessions := store.NewSessionStore(db)
	sess, err := sessions.Create(user.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var gotUserID string
	wrapped := RequireSession(sessions)(okHandler(t, &gotUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/people", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != user.ID {
		t.Errorf("user id in context = %q, want %q", gotUserID, user.ID)
	}

	// Bad token
	req = httptest.NewRequest(http.MethodGet, "/api/people", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for unknown token", rec.Code)
	}

	// Expired session
	expired, err := sessions.Create(user.ID, -time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/people", nil)
	req.Header.Set("Authorization", "Bearer "+expired.Token)
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired session", rec.Code)
	}
}
