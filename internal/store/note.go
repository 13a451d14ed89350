package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/google/uuid"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

const noteCols = `id, person_id, title, content, pinned, deleted_at, permanently_deleted_at, created_at, updated_at`

func scanNote(scanner interface{ Scan(...any) error }) (*model.Note, error) {
	var n model.Note
	var title sql.NullString
	var pinned int
	var deletedAt, goneAt sql.NullTime

	err := scanner.Scan(
		&n.ID, &n.PersonID, &title, &n.Content, &pinned,
		&deletedAt, &goneAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Pinned = pinned != 0
	if title.Valid {
		n.Title = &title.String
	}
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}
	if goneAt.Valid {
		n.PermanentlyDeletedAt = &goneAt.Time
	}
	return &n, nil
}

func (s *NoteStore) Create(personID string, title *string, content string, pinned bool) (*model.Note, error) {
	id := uuid.NewString()
	var t sql.NullString
	if title != nil {
		t = sql.NullString{String: *title, Valid: true}
	}
	var p int
	if pinned {
		p = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO notes (id, person_id, title, content, pinned) VALUES (?, ?, ?, ?, ?)`,
		id, personID, t, content, p,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) GetByID(id string) (*model.Note, error) {
	row := s.db.QueryRow(
		`SELECT `+noteCols+` FROM notes
		 WHERE id = ? AND permanently_deleted_at IS NULL`, id,
	)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// ListByPerson returns the person's active notes, pinned first, newest first.
func (s *NoteStore) ListByPerson(personID string) ([]model.Note, error) {
	rows, err := s.db.Query(
		`SELECT `+noteCols+` FROM notes
		 WHERE person_id = ? AND deleted_at IS NULL AND permanently_deleted_at IS NULL
		 ORDER BY pinned DESC, updated_at DESC`, personID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (s *NoteStore) Update(id string, title *string, content string, pinned bool) (*model.Note, error) {
	var t sql.NullString
	if title != nil {
		t = sql.NullString{String: *title, Valid: true}
	}
	var p int
	if pinned {
		p = 1
	}

	_, err := s.db.Exec(
		`UPDATE notes SET title = ?, content = ?, pinned = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND permanently_deleted_at IS NULL`,
		t, content, p, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) SoftDelete(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notes SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND permanently_deleted_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete note: %w", err)
	}
	return nil
}

func (s *NoteStore) Restore(id string) error {
	_, err := s.db.Exec(
		`UPDATE notes SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND permanently_deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("restore note: %w", err)
	}
	return nil
}

// MarkExpiredPermanentlyDeleted flags notes soft-deleted before the cutoff
// as permanently deleted. Returns the number of rows affected.
func (s *NoteStore) MarkExpiredPermanentlyDeleted(cutoff, now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE notes SET permanently_deleted_at = ?
		 WHERE deleted_at IS NOT NULL AND deleted_at < ? AND permanently_deleted_at IS NULL`,
		now.UTC(), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark notes permanently deleted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
