package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/tilly/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	user, err := NewUserStore(db).Create("", email, "Test User")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user.ID
}
