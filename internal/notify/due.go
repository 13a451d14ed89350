package notify

import (
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

// CountDueReminders counts reminders that qualify for the user's daily
// digest: owned by a non-deleted person, not done, not deleted, and due
// on or before today in the user's timezone. Future-dated reminders never
// count, even when the UTC date has already rolled over.
func CountDueReminders(people []model.Person, settings *model.NotificationSettings, nowUTC time.Time) (int, error) {
	loc, err := time.LoadLocation(settings.EffectiveTimezone())
	if err != nil {
		return 0, fmt.Errorf("load timezone %q: %w", settings.EffectiveTimezone(), err)
	}

	localToday := nowUTC.In(loc).Format("2006-01-02")

	count := 0
	for i := range people {
		person := &people[i]
		if person.Deleted() {
			continue
		}
		for j := range person.Reminders {
			if ReminderDueOn(&person.Reminders[j], loc, localToday) {
				count++
			}
		}
	}
	return count, nil
}

// ReminderDueOn is the single due predicate shared by the digest counter
// and the reminders listing so the two never disagree. The stored
// YYYY-MM-DD due date is read as a UTC-midnight instant and shifted into
// the user's zone before the calendar-date compare. Malformed dates are
// treated as not due.
func ReminderDueOn(r *model.Reminder, loc *time.Location, localToday string) bool {
	if r.Done || r.Deleted() {
		return false
	}
	due, err := time.Parse("2006-01-02", r.DueAtDate)
	if err != nil {
		return false
	}
	return due.In(loc).Format("2006-01-02") <= localToday
}

// DueReminders filters the person graph down to the reminders the digest
// would count, for the assistant's "what is due" listing.
func DueReminders(people []model.Person, settings *model.NotificationSettings, nowUTC time.Time) ([]model.Reminder, error) {
	loc, err := time.LoadLocation(settings.EffectiveTimezone())
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", settings.EffectiveTimezone(), err)
	}

	localToday := nowUTC.In(loc).Format("2006-01-02")

	var due []model.Reminder
	for i := range people {
		person := &people[i]
		if person.Deleted() {
			continue
		}
		for j := range person.Reminders {
			if ReminderDueOn(&person.Reminders[j], loc, localToday) {
				due = append(due, person.Reminders[j])
			}
		}
	}
	return due, nil
}
