package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/google/uuid"
)

type PersonStore struct {
	db *sql.DB
}

func NewPersonStore(db *sql.DB) *PersonStore {
	return &PersonStore{db: db}
}

const personCols = `id, user_id, name, summary, deleted_at, permanently_deleted_at, created_at, updated_at`

func scanPerson(scanner interface{ Scan(...any) error }) (*model.Person, error) {
	var p model.Person
	var deletedAt, goneAt sql.NullTime

	err := scanner.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Summary,
		&deletedAt, &goneAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	if goneAt.Valid {
		p.PermanentlyDeletedAt = &goneAt.Time
	}
	return &p, nil
}

func (s *PersonStore) Create(userID, name, summary string) (*model.Person, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO people (id, user_id, name, summary) VALUES (?, ?, ?, ?)`,
		id, userID, name, summary,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return s.GetByID(id, userID)
}

func (s *PersonStore) GetByID(id, userID string) (*model.Person, error) {
	row := s.db.QueryRow(
		`SELECT `+personCols+` FROM people
		 WHERE id = ? AND user_id = ? AND permanently_deleted_at IS NULL`, id, userID,
	)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// List returns the user's active people, most recently updated first.
func (s *PersonStore) List(userID string) ([]model.Person, error) {
	rows, err := s.db.Query(
		`SELECT `+personCols+` FROM people
		 WHERE user_id = ? AND deleted_at IS NULL AND permanently_deleted_at IS NULL
		 ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

// ListDeleted returns soft-deleted people still inside the retention window.
func (s *PersonStore) ListDeleted(userID string) ([]model.Person, error) {
	rows, err := s.db.Query(
		`SELECT `+personCols+` FROM people
		 WHERE user_id = ? AND deleted_at IS NOT NULL AND permanently_deleted_at IS NULL
		 ORDER BY deleted_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deleted people: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

// ListWithReminders loads the user's people (soft-deleted included, gone
// excluded) with their non-gone reminders attached. The due predicate is
// applied by the caller so it can use the user's timezone.
func (s *PersonStore) ListWithReminders(userID string) ([]model.Person, error) {
	rows, err := s.db.Query(
		`SELECT `+personCols+` FROM people
		 WHERE user_id = ? AND permanently_deleted_at IS NULL`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list people with reminders: %w", err)
	}
	defer rows.Close()

	people, err := collectPeople(rows)
	if err != nil {
		return nil, err
	}

	for i := range people {
		reminders, err := s.remindersForPerson(people[i].ID)
		if err != nil {
			return nil, err
		}
		people[i].Reminders = reminders
	}
	return people, nil
}

func (s *PersonStore) remindersForPerson(personID string) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderCols+` FROM reminders
		 WHERE person_id = ? AND permanently_deleted_at IS NULL`, personID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders for person: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *PersonStore) Update(id, userID, name, summary string) (*model.Person, error) {
	_, err := s.db.Exec(
		`UPDATE people SET name = ?, summary = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		name, summary, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update person: %w", err)
	}
	return s.GetByID(id, userID)
}

// SoftDelete marks the person deleted; it stays recoverable for the
// retention window.
func (s *PersonStore) SoftDelete(id, userID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE people SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND permanently_deleted_at IS NULL`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("soft delete person: %w", err)
	}
	return nil
}

// Restore clears a soft delete.
func (s *PersonStore) Restore(id, userID string) error {
	_, err := s.db.Exec(
		`UPDATE people SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND permanently_deleted_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("restore person: %w", err)
	}
	return nil
}

// MarkExpiredPermanentlyDeleted flags people soft-deleted before the cutoff
// as permanently deleted. Returns the number of rows affected.
func (s *PersonStore) MarkExpiredPermanentlyDeleted(cutoff, now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE people SET permanently_deleted_at = ?
		 WHERE deleted_at IS NOT NULL AND deleted_at < ? AND permanently_deleted_at IS NULL`,
		now.UTC(), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark people permanently deleted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func collectPeople(rows *sql.Rows) ([]model.Person, error) {
	var people []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}
