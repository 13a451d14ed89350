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

type NoteHandler struct {
	notes  *store.NoteStore
	people *store.PersonStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewNoteHandler(ns *store.NoteStore, ps *store.PersonStore, hub *websocket.Hub, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: ns, people: ps, hub: hub, logger: logger}
}

func (h *NoteHandler) publish(userID string, ev websocket.Event) {
	if h.hub != nil {
		h.hub.Publish(userID, ev)
	}
}

func (h *NoteHandler) ownedNote(id, userID string) (*model.Note, error) {
	note, err := h.notes.GetByID(id)
	if err != nil || note == nil {
		return note, err
	}
	person, err := h.people.GetByID(note.PersonID, userID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, nil
	}
	return note, nil
}

type noteRequest struct {
	Title   *string `json:"title"`
	Content string  `json:"content"`
	Pinned  bool    `json:"pinned"`
}

// Create handles POST /api/people/{id}/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := h.notes.Create(personID, req.Title, req.Content, req.Pinned)
	if err != nil {
		h.logger.Error("create note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	h.publish(userID, websocket.NewEvent("note", "created", note.ID, nil))
	writeJSON(w, http.StatusCreated, note)
}

// ListByPerson handles GET /api/people/{id}/notes
func (h *NoteHandler) ListByPerson(w http.ResponseWriter, r *http.Request) {
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

	notes, err := h.notes.ListByPerson(personID)
	if err != nil {
		h.logger.Error("list notes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}
	if notes == nil {
		notes = []model.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// Update handles PUT /api/notes/{id}
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedNote(id, userID)
	if err != nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := h.notes.Update(id, req.Title, req.Content, req.Pinned)
	if err != nil {
		h.logger.Error("update note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update note")
		return
	}

	h.publish(userID, websocket.NewEvent("note", "updated", id, nil))
	writeJSON(w, http.StatusOK, note)
}

// Delete handles DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedNote(id, userID)
	if err != nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	if err := h.notes.SoftDelete(id, time.Now().UTC()); err != nil {
		h.logger.Error("delete note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}

	h.publish(userID, websocket.NewEvent("note", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/notes/{id}/restore
func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.ownedNote(id, userID)
	if err != nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	if err := h.notes.Restore(id); err != nil {
		h.logger.Error("restore note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restore note")
		return
	}

	note, err := h.notes.GetByID(id)
	if err != nil || note == nil {
		h.logger.Error("get note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get note")
		return
	}

	h.publish(userID, websocket.NewEvent("note", "restored", id, nil))
	writeJSON(w, http.StatusOK, note)
}
