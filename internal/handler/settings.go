package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/push"
	"github.com/dukerupert/tilly/internal/store"
)

type SettingsHandler struct {
	settings *store.SettingsStore
	devices  *store.DeviceStore
	registry *store.RegistryStore
	push     *push.Service
	logger   *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, ds *store.DeviceStore, rs *store.RegistryStore, svc *push.Service, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, devices: ds, registry: rs, push: svc, logger: logger}
}

// Get handles GET /api/settings/notifications
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	settings, err := h.settings.Get(userID)
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	Timezone         string `json:"timezone"`
	NotificationTime string `json:"notification_time"`
}

// Update handles PUT /api/settings/notifications
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
	}
	if req.NotificationTime != "" {
		if _, err := time.Parse("15:04", req.NotificationTime); err != nil {
			writeError(w, http.StatusBadRequest, "notification_time must be HH:MM")
			return
		}
	}

	if err := h.settings.Update(userID, req.Timezone, req.NotificationTime); err != nil {
		h.logger.Error("update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	settings, err := h.settings.Get(userID)
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe. Upserting by endpoint makes
// re-subscription from the same browser idempotent, and enrolls the user
// in the daily digest run.
func (h *SettingsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	device, err := h.devices.Upsert(userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("save push device", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save device")
		return
	}

	if err := h.registry.Register(userID); err != nil {
		h.logger.Error("register for notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

// ListDevices handles GET /api/push/devices
func (h *SettingsHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	devices, err := h.devices.ListByUser(userID)
	if err != nil {
		h.logger.Error("list devices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToggleDevice handles PATCH /api/push/devices/{id}
func (h *SettingsHandler) ToggleDevice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	id, err := parseInt64Param(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.devices.SetEnabled(id, userID, req.Enabled); err != nil {
		h.logger.Error("toggle device", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// DeleteDevice handles DELETE /api/push/devices/{id}. Removing the last
// device drops the user from the digest run.
func (h *SettingsHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	id, err := parseInt64Param(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.devices.Delete(id, userID); err != nil {
		h.logger.Error("delete device", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete device")
		return
	}

	remaining, err := h.devices.ListByUser(userID)
	if err == nil && len(remaining) == 0 {
		if err := h.registry.Unregister(userID); err != nil {
			h.logger.Error("unregister from notifications", "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *SettingsHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.push.VAPIDPublicKey()})
}

type testNotificationRequest struct {
	Endpoint string `json:"endpoint"`
}

// TestNotification handles POST /api/push/test. It sends a probe
// notification to one of the caller's devices so the browser permission
// flow can be verified end to end.
func (h *SettingsHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req testNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	device, err := h.devices.GetByEndpoint(req.Endpoint)
	if err != nil {
		h.logger.Error("get device", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get device")
		return
	}
	if device == nil || device.UserID != userID {
		writeError(w, http.StatusConflict, "device not registered")
		return
	}

	payload := push.Payload{
		Title:  "Test notification",
		Body:   "Push notifications are working.",
		UserID: userID,
		URL:    "/app/settings",
	}
	if err := h.push.Send(*device, payload); err != nil {
		if errors.Is(err, push.ErrExpired) {
			writeError(w, http.StatusConflict, "subscription expired")
			return
		}
		h.logger.Error("send test notification", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
