package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/tilly/internal/billing"
	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/store"
)

type BillingHandler struct {
	client        *billing.Client
	users         *store.UserStore
	subscriptions *store.SubscriptionStore
	logger        *slog.Logger
}

func NewBillingHandler(client *billing.Client, us *store.UserStore, ss *store.SubscriptionStore, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{client: client, users: us, subscriptions: ss, logger: logger}
}

// Status handles GET /api/billing/subscription
func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	sub, err := h.subscriptions.Get(userID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Checkout handles POST /api/billing/checkout. It creates the Stripe
// customer on first use and returns the hosted checkout URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	userID := middleware.UserID(r.Context())

	sub, err := h.subscriptions.Get(userID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	customerID := sub.StripeCustomerID
	if customerID == "" {
		user, err := h.users.GetByID(userID)
		if err != nil || user == nil {
			h.logger.Error("get user", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get user")
			return
		}
		customerID, err = h.client.CreateCustomer(user.Email, userID)
		if err != nil {
			h.logger.Error("create stripe customer", "error", err)
			writeError(w, http.StatusBadGateway, "failed to create customer")
			return
		}
		if err := h.subscriptions.Upsert(userID, sub.Tier, sub.IsTrial, sub.NextPaymentDate, customerID); err != nil {
			h.logger.Error("save customer id", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save customer")
			return
		}
	}

	url, err := h.client.CreateCheckoutSession(customerID)
	if err != nil {
		h.logger.Error("create checkout session", "error", err)
		writeError(w, http.StatusBadGateway, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// Portal handles POST /api/billing/portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	userID := middleware.UserID(r.Context())

	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ReturnURL == "" {
		req.ReturnURL = "/app/settings"
	}

	sub, err := h.subscriptions.Get(userID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub.StripeCustomerID == "" {
		writeError(w, http.StatusConflict, "no billing account")
		return
	}

	url, err := h.client.CreateBillingPortalSession(sub.StripeCustomerID, req.ReturnURL)
	if err != nil {
		h.logger.Error("create portal session", "error", err)
		writeError(w, http.StatusBadGateway, "failed to open billing portal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook handles POST /api/billing/webhook. Stripe is the source of
// truth for tier changes; the local subscription row just mirrors it.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionChanged(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	default:
		h.logger.Debug("ignoring stripe event", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *BillingHandler) handleSubscriptionChanged(event stripe.Event) {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("unmarshal subscription event", "error", err)
		return
	}
	if stripeSub.Customer == nil {
		return
	}

	local, err := h.subscriptions.GetByCustomerID(stripeSub.Customer.ID)
	if err != nil || local == nil {
		h.logger.Warn("webhook for unknown customer", "customer_id", stripeSub.Customer.ID, "error", err)
		return
	}

	tier := model.TierFree
	active := stripeSub.Status == stripe.SubscriptionStatusActive ||
		stripeSub.Status == stripe.SubscriptionStatusTrialing
	if active {
		tier = model.TierPlus
	}
	isTrial := stripeSub.Status == stripe.SubscriptionStatusTrialing

	var nextPayment *time.Time
	if len(stripeSub.Items.Data) > 0 {
		if end := stripeSub.Items.Data[0].CurrentPeriodEnd; end > 0 {
			t := time.Unix(end, 0).UTC()
			nextPayment = &t
		}
	}

	if err := h.subscriptions.Upsert(local.UserID, tier, isTrial, nextPayment, stripeSub.Customer.ID); err != nil {
		h.logger.Error("update subscription", "user_id", local.UserID, "error", err)
		return
	}
	h.logger.Info("subscription updated", "user_id", local.UserID, "tier", tier, "status", stripeSub.Status)
}

func (h *BillingHandler) handleSubscriptionDeleted(event stripe.Event) {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("unmarshal subscription event", "error", err)
		return
	}
	if stripeSub.Customer == nil {
		return
	}

	local, err := h.subscriptions.GetByCustomerID(stripeSub.Customer.ID)
	if err != nil || local == nil {
		h.logger.Warn("webhook for unknown customer", "customer_id", stripeSub.Customer.ID, "error", err)
		return
	}

	if err := h.subscriptions.Upsert(local.UserID, model.TierFree, false, nil, stripeSub.Customer.ID); err != nil {
		h.logger.Error("downgrade subscription", "user_id", local.UserID, "error", err)
		return
	}
	h.logger.Info("subscription canceled", "user_id", local.UserID)
}
