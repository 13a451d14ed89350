package store

import (
	"database/sql"
	"fmt"
	"iter"
)

// RegistryStore tracks which users have opted into background push
// processing. The cron runner enumerates it; client settings register
// and unregister.
type RegistryStore struct {
	db *sql.DB
}

func NewRegistryStore(db *sql.DB) *RegistryStore {
	return &RegistryStore{db: db}
}

// Register opts the user in. Registering an already-present user is a no-op.
func (s *RegistryStore) Register(userID string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO push_registry (user_id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("register user for push: %w", err)
	}
	return nil
}

// Unregister opts the user out. Unregistering an absent user is a no-op.
func (s *RegistryStore) Unregister(userID string) error {
	_, err := s.db.Exec(`DELETE FROM push_registry WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("unregister user from push: %w", err)
	}
	return nil
}

func (s *RegistryStore) IsRegistered(userID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM push_registry WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check push registration: %w", err)
	}
	return count > 0, nil
}

// All lazily yields every registered user id. Rows stream from the
// database as the consumer advances, so the registry never needs to fit
// in memory. No ordering is guaranteed.
func (s *RegistryStore) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rows, err := s.db.Query(`SELECT user_id FROM push_registry`)
		if err != nil {
			yield("", fmt.Errorf("enumerate push registry: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var userID string
			if err := rows.Scan(&userID); err != nil {
				yield("", fmt.Errorf("scan registry row: %w", err))
				return
			}
			if !yield(userID, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", fmt.Errorf("iterate push registry: %w", err))
		}
	}
}
