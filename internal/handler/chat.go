package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tilly/internal/chat"
	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/store"
	"github.com/dukerupert/tilly/internal/usage"
)

type ChatHandler struct {
	completer     chat.Completer
	meter         *usage.Meter
	subscriptions *store.SubscriptionStore
	// paywallEnabled gates chat behind the Plus tier. Off by default so
	// self-hosted deployments work without Stripe.
	paywallEnabled bool
	logger         *slog.Logger
}

func NewChatHandler(completer chat.Completer, meter *usage.Meter, subs *store.SubscriptionStore, paywallEnabled bool, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		completer:      completer,
		meter:          meter,
		subscriptions:  subs,
		paywallEnabled: paywallEnabled,
		logger:         logger,
	}
}

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type chatResponse struct {
	Content string     `json:"content"`
	Usage   chat.Usage `json:"usage"`
}

type usageLimitResponse struct {
	Error         string    `json:"error"`
	Code          string    `json:"code"`
	LimitExceeded bool      `json:"limitExceeded"`
	PercentUsed   float64   `json:"percentUsed"`
	ResetDate     time.Time `json:"resetDate"`
}

// Complete handles POST /api/chat. The usage gate runs before generation
// and the meter update after, so a request that fails generation costs
// nothing.
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	if h.paywallEnabled {
		sub, err := h.subscriptions.Get(userID)
		if err != nil {
			h.logger.Error("get subscription", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check subscription")
			return
		}
		if !sub.HasPlusAccess() {
			writeJSON(w, http.StatusPaymentRequired, map[string]string{
				"error": "chat requires a Plus subscription",
				"code":  "subscription-required",
			})
			return
		}
	}

	limits, err := h.meter.Check(userID)
	if err != nil {
		h.logger.Error("check usage limits", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check usage")
		return
	}
	if limits.Exceeded {
		writeJSON(w, http.StatusTooManyRequests, usageLimitResponse{
			Error:         "weekly usage limit exceeded",
			Code:          "usage-limit-exceeded",
			LimitExceeded: true,
			PercentUsed:   limits.PercentUsed,
			ResetDate:     limits.ResetDate,
		})
		return
	}

	if !h.meter.CheckInputSize(userID, req.Messages) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "message is too long",
			"code":  "input-too-large",
		})
		return
	}

	completion, err := h.completer.Complete(r.Context(), req.Messages)
	if err != nil {
		h.logger.Error("chat completion", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "chat completion failed")
		return
	}

	// The response already cost real tokens; a metering failure must not
	// hide it from the user.
	if err := h.meter.Update(userID, completion.Usage); err != nil {
		h.logger.Error("update usage", "user_id", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: completion.Content,
		Usage:   completion.Usage,
	})
}

// Usage handles GET /api/chat/usage so the client can render the budget
// meter without sending a message.
func (h *ChatHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limits, err := h.meter.Check(userID)
	if err != nil {
		h.logger.Error("check usage limits", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check usage")
		return
	}
	writeJSON(w, http.StatusOK, limits)
}
