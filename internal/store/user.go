package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/google/uuid"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, name, language, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.Language, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user record mirroring an externally-authenticated identity.
// When id is empty a fresh one is generated.
func (s *UserStore) Create(id, email, name string) (*model.User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, name) VALUES (?, ?, ?)`,
		id, email, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// SetLanguage updates the user's preferred notification language.
func (s *UserStore) SetLanguage(id, language string) error {
	_, err := s.db.Exec(
		`UPDATE users SET language = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		language, id,
	)
	if err != nil {
		return fmt.Errorf("set user language: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
