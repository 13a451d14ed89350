package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/google/uuid"
)

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderCols = `id, person_id, text, due_at_date, done, repeat_interval, repeat_unit, deleted_at, permanently_deleted_at, created_at, updated_at`

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var done int
	var repeatInterval sql.NullInt64
	var repeatUnit sql.NullString
	var deletedAt, goneAt sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.PersonID, &r.Text, &r.DueAtDate, &done,
		&repeatInterval, &repeatUnit,
		&deletedAt, &goneAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Done = done != 0
	if repeatInterval.Valid && repeatUnit.Valid {
		r.Repeat = &model.Repeat{Interval: int(repeatInterval.Int64), Unit: repeatUnit.String}
	}
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	if goneAt.Valid {
		r.PermanentlyDeletedAt = &goneAt.Time
	}
	return &r, nil
}

func (s *ReminderStore) Create(personID, text, dueAtDate string, repeat *model.Repeat) (*model.Reminder, error) {
	id := uuid.NewString()
	var interval sql.NullInt64
	var unit sql.NullString
	if repeat != nil {
		interval = sql.NullInt64{Int64: int64(repeat.Interval), Valid: true}
		unit = sql.NullString{String: repeat.Unit, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO reminders (id, person_id, text, due_at_date, repeat_interval, repeat_unit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, personID, text, dueAtDate, interval, unit,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReminderStore) GetByID(id string) (*model.Reminder, error) {
	row := s.db.QueryRow(
		`SELECT `+reminderCols+` FROM reminders
		 WHERE id = ? AND permanently_deleted_at IS NULL`, id,
	)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// ListByPerson returns the person's active reminders ordered by due date.
func (s *ReminderStore) ListByPerson(personID string) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderCols+` FROM reminders
		 WHERE person_id = ? AND deleted_at IS NULL AND permanently_deleted_at IS NULL
		 ORDER BY due_at_date ASC`, personID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

type ReminderUpdate struct {
	Text      *string
	DueAtDate *string
	Repeat    *model.Repeat
	// ClearRepeat removes an existing repeat rule.
	ClearRepeat bool
	Done        *bool
}

// Update applies the given field changes. Completing a repeating reminder
// does not set done; instead the due date advances by the repeat rule and
// the reminder stays open, matching the journal's "repeat rolls forward"
// behavior.
func (s *ReminderStore) Update(id string, upd ReminderUpdate) (*model.Reminder, error) {
	r, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}

	if upd.Text != nil {
		r.Text = *upd.Text
	}
	if upd.DueAtDate != nil {
		r.DueAtDate = *upd.DueAtDate
	}
	if upd.Repeat != nil {
		r.Repeat = upd.Repeat
	}
	if upd.ClearRepeat {
		r.Repeat = nil
	}
	if upd.Done != nil {
		switch {
		case *upd.Done && !r.Done && r.Repeat != nil:
			next, err := NextDueDate(r.DueAtDate, r.Repeat)
			if err != nil {
				return nil, err
			}
			r.DueAtDate = next
			r.Done = false
		default:
			r.Done = *upd.Done
		}
	}

	var interval sql.NullInt64
	var unit sql.NullString
	if r.Repeat != nil {
		interval = sql.NullInt64{Int64: int64(r.Repeat.Interval), Valid: true}
		unit = sql.NullString{String: r.Repeat.Unit, Valid: true}
	}
	var done int
	if r.Done {
		done = 1
	}

	_, err = s.db.Exec(
		`UPDATE reminders
		 SET text = ?, due_at_date = ?, done = ?, repeat_interval = ?, repeat_unit = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		r.Text, r.DueAtDate, done, interval, unit, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReminderStore) SoftDelete(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND permanently_deleted_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete reminder: %w", err)
	}
	return nil
}

func (s *ReminderStore) Restore(id string) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND permanently_deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("restore reminder: %w", err)
	}
	return nil
}

// MarkExpiredPermanentlyDeleted flags reminders soft-deleted before the
// cutoff as permanently deleted. Returns the number of rows affected.
func (s *ReminderStore) MarkExpiredPermanentlyDeleted(cutoff, now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET permanently_deleted_at = ?
		 WHERE deleted_at IS NOT NULL AND deleted_at < ? AND permanently_deleted_at IS NULL`,
		now.UTC(), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark reminders permanently deleted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// NextDueDate advances a YYYY-MM-DD due date by one repeat step.
func NextDueDate(dueAtDate string, repeat *model.Repeat) (string, error) {
	due, err := time.Parse("2006-01-02", dueAtDate)
	if err != nil {
		return "", fmt.Errorf("parse due date %q: %w", dueAtDate, err)
	}

	var next time.Time
	switch repeat.Unit {
	case model.RepeatDay:
		next = due.AddDate(0, 0, repeat.Interval)
	case model.RepeatWeek:
		next = due.AddDate(0, 0, 7*repeat.Interval)
	case model.RepeatMonth:
		next = due.AddDate(0, repeat.Interval, 0)
	case model.RepeatYear:
		next = due.AddDate(repeat.Interval, 0, 0)
	default:
		return "", fmt.Errorf("unknown repeat unit %q", repeat.Unit)
	}

	return next.Format("2006-01-02"), nil
}

func collectReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}
