package model

import "time"

// Repeat units for recurring reminders.
const (
	RepeatDay   = "day"
	RepeatWeek  = "week"
	RepeatMonth = "month"
	RepeatYear  = "year"
)

// Repeat describes how a reminder recurs after being completed.
type Repeat struct {
	Interval int    `json:"interval"`
	Unit     string `json:"unit"`
}

type Person struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Name                 string     `json:"name"`
	Summary              string     `json:"summary"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	PermanentlyDeletedAt *time.Time `json:"permanently_deleted_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`

	// Reminders is populated only by queries that load the person graph.
	Reminders []Reminder `json:"reminders,omitempty"`
}

type Note struct {
	ID                   string     `json:"id"`
	PersonID             string     `json:"person_id"`
	Title                *string    `json:"title,omitempty"`
	Content              string     `json:"content"`
	Pinned               bool       `json:"pinned"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	PermanentlyDeletedAt *time.Time `json:"permanently_deleted_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type Reminder struct {
	ID                   string     `json:"id"`
	PersonID             string     `json:"person_id"`
	Text                 string     `json:"text"`
	DueAtDate            string     `json:"due_at_date"`
	Done                 bool       `json:"done"`
	Repeat               *Repeat    `json:"repeat,omitempty"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	PermanentlyDeletedAt *time.Time `json:"permanently_deleted_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SoftDeletable is anything carrying the two-stage delete timestamps.
type SoftDeletable interface {
	Deleted() bool
	Gone() bool
}

// Deleted reports whether the person is soft-deleted or gone.
func (p *Person) Deleted() bool { return p.DeletedAt != nil || p.PermanentlyDeletedAt != nil }

// Gone reports whether the person is permanently deleted.
func (p *Person) Gone() bool { return p.PermanentlyDeletedAt != nil }

func (n *Note) Deleted() bool { return n.DeletedAt != nil || n.PermanentlyDeletedAt != nil }
func (n *Note) Gone() bool    { return n.PermanentlyDeletedAt != nil }

func (r *Reminder) Deleted() bool { return r.DeletedAt != nil || r.PermanentlyDeletedAt != nil }
func (r *Reminder) Gone() bool    { return r.PermanentlyDeletedAt != nil }

// ValidRepeatUnit reports whether unit is one of the supported repeat units.
func ValidRepeatUnit(unit string) bool {
	switch unit {
	case RepeatDay, RepeatWeek, RepeatMonth, RepeatYear:
		return true
	}
	return false
}
