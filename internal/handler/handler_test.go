package handler

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/tilly/internal/database"
	"github.com/dukerupert/tilly/internal/store"

	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := store.NewUserStore(db).Create(id, email, "Test User"); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return id
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
