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

type PersonHandler struct {
	people *store.PersonStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewPersonHandler(ps *store.PersonStore, hub *websocket.Hub, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{people: ps, hub: hub, logger: logger}
}

func (h *PersonHandler) publish(userID string, ev websocket.Event) {
	if h.hub != nil {
		h.hub.Publish(userID, ev)
	}
}

type personRequest struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Create handles POST /api/people
func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	person, err := h.people.Create(userID, req.Name, req.Summary)
	if err != nil {
		h.logger.Error("create person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create person")
		return
	}

	h.publish(userID, websocket.NewEvent("person", "created", person.ID, nil))
	writeJSON(w, http.StatusCreated, person)
}

// List handles GET /api/people
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	people, err := h.people.List(userID)
	if err != nil {
		h.logger.Error("list people", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	if people == nil {
		people = []model.Person{}
	}
	writeJSON(w, http.StatusOK, people)
}

// ListDeleted handles GET /api/people/deleted
func (h *PersonHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	people, err := h.people.ListDeleted(userID)
	if err != nil {
		h.logger.Error("list deleted people", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	if people == nil {
		people = []model.Person{}
	}
	writeJSON(w, http.StatusOK, people)
}

// Get handles GET /api/people/{id}
func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	person, err := h.people.GetByID(idParam(r), userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// Update handles PUT /api/people/{id}
func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.people.GetByID(id, userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	person, err := h.people.Update(id, userID, req.Name, req.Summary)
	if err != nil {
		h.logger.Error("update person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update person")
		return
	}

	h.publish(userID, websocket.NewEvent("person", "updated", id, nil))
	writeJSON(w, http.StatusOK, person)
}

// Delete handles DELETE /api/people/{id}. Deletion is soft; the person
// stays restorable for the retention window.
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	existing, err := h.people.GetByID(id, userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	if err := h.people.SoftDelete(id, userID, time.Now().UTC()); err != nil {
		h.logger.Error("delete person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete person")
		return
	}

	h.publish(userID, websocket.NewEvent("person", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/people/{id}/restore
func (h *PersonHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id := idParam(r)

	if err := h.people.Restore(id, userID); err != nil {
		h.logger.Error("restore person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restore person")
		return
	}

	person, err := h.people.GetByID(id, userID)
	if err != nil {
		h.logger.Error("get person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	h.publish(userID, websocket.NewEvent("person", "restored", id, nil))
	writeJSON(w, http.StatusOK, person)
}
