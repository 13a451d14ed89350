package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/store"
	"github.com/dukerupert/tilly/internal/websocket"
)

type ReminderHandler struct {
	reminders *store.ReminderStore
	people    *store.PersonStore
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewReminderHandler(rs *store.ReminderStore, ps *store.PersonStore, hub *websocket.Hub, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{reminders: rs, people: ps, hub: hub, logger: logger}
}

func (h *ReminderHandler) publish(userID string, ev websocket.Event) {
	if h.hub != nil {
		h.hub.Publish(userID, ev)
	}
}

// ownedReminder loads a reminder and verifies it belongs to one of the
// user's people. Reminders have no user column of their own.
func (h *ReminderHandler) ownedReminder(id, userID string) (*model.Reminder, error) {
	rem, err := h.reminders.GetByID(id)
	if err != nil || rem == nil {
		return rem, err
	}
	person, err := h.people.GetByID(rem.PersonID, userID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, nil
	}
	return rem, nil
}

type reminderRequest struct {
	Text      string        `json:"text"`
	DueAtDate string        `json:"due_at_date"`
	Repeat    *model.Repeat `json:"repeat"`
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Create handles POST /api/people/{id}/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	personID := idParam(r)

	person, err := h.people.GetByID(personID, userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !validDate(req.DueAtDate) {
		writeError(w, http.StatusBadRequest, "due_at_date must be YYYY-MM-DD")
		return
	}
	if req.Repeat != nil && (req.Repeat.Interval < 1 || !model.ValidRepeatUnit(req.Repeat.Unit)) {
		writeError(w, http.StatusBadRequest, "invalid repeat rule")
		return
	}

	rem, err := h.reminders.Create(personID, req.Text, req.DueAtDate, req.Repeat)
	if err != nil {
		h.logger.Error("create reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}

	h.publish(userID, websocket.NewEvent("reminder", "created", rem.ID, nil))
	writeJSON(w, http.StatusCreated, rem)
}

// ListByPerson handles GET /api/people/{id}/reminders
func (h *ReminderHandler) ListByPerson(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	personID := idParam(r)

	person, err := h.people.GetByID(personID, userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	reminders, err := h.reminders.ListByPerson(personID)
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

type reminderUpdateRequest struct {
	Text        *string       `json:"text"`
	DueAtDate   *string       `json:"due_at_date"`
	Repeat      *model.Repeat `json:"repeat"`
	ClearRepeat bool          `json:"clear_repeat"`
	Done        *bool         `json:"done"`
}

// Update handles PATCH /api/reminders/{id}. Marking a repeating reminder
// done advances its due date instead of completing it.
func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedReminder(id, userID)
	if err != nil {
		h.logger.Error("get reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	var req reminderUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Text != nil && strings.TrimSpace(*req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text cannot be empty")
		return
	}
	if req.DueAtDate != nil && !validDate(*req.DueAtDate) {
		writeError(w, http.StatusBadRequest, "due_at_date must be YYYY-MM-DD")
		return
	}
	if req.Repeat != nil && (req.Repeat.Interval < 1 || !model.ValidRepeatUnit(req.Repeat.Unit)) {
		writeError(w, http.StatusBadRequest, "invalid repeat rule")
		return
	}

	rem, err := h.reminders.Update(id, store.ReminderUpdate{
		Text:        req.Text,
		DueAtDate:   req.DueAtDate,
		Repeat:      req.Repeat,
		ClearRepeat: req.ClearRepeat,
		Done:        req.Done,
	})
	if err != nil {
		h.logger.Error("update reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}

	h.publish(userID, websocket.NewEvent("reminder", "updated", id, nil))
	writeJSON(w, http.StatusOK, rem)
}

// Delete handles DELETE /api/reminders/{id}
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedReminder(id, userID)
	if err != nil {
		h.logger.Error("get reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	if err := h.reminders.SoftDelete(id, time.Now().UTC()); err != nil {
		h.logger.Error("delete reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}

	h.publish(userID, websocket.NewEvent("reminder", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/reminders/{id}/restore
func (h *ReminderHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedReminder(id, userID)
	if err != nil {
		h.logger.Error("get reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	if err := h.reminders.Restore(id); err != nil {
		h.logger.Error("restore reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restore reminder")
		return
	}

	rem, err := h.reminders.GetByID(id)
	if err != nil || rem == nil {
		h.logger.Error("get reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}

	h.publish(userID, websocket.NewEvent("reminder", "restored", id, nil))
	writeJSON(w, http.StatusOK, rem)
}
