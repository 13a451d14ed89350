package store

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSessionStore(db)

	sess, err := ss.Create(userID, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a token")
	}

	got, err := ss.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.UserID != userID {
		t.Fatalf("got = %+v, want session for %s", got, userID)
	}

	if err := ss.Delete(sess.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = ss.GetByToken(sess.Token)
	if got != nil {
		t.Error("deleted session should not resolve")
	}
}

func TestSessionExpiry(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSessionStore(db)

	sess, err := ss.Create(userID, -time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := ss.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expired session should resolve to nil")
	}

	if err := ss.DeleteExpired(); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
}

func TestSessionTokensAreUnique(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db, "ada@example.com")
	ss := NewSessionStore(db)

	a, err := ss.Create(userID, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := ss.Create(userID, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Token == b.Token {
		t.Error("two sessions should never share a token")
	}
}
