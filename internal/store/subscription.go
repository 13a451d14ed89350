package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tilly/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Get returns the user's subscription. A missing row means free tier;
// callers receive a synthesized free record rather than nil.
func (s *SubscriptionStore) Get(userID string) (*model.Subscription, error) {
	var sub model.Subscription
	var isTrial int
	var nextPayment sql.NullTime
	var customerID sql.NullString

	err := s.db.QueryRow(
		`SELECT user_id, tier, is_trial, next_payment_date, stripe_customer_id, updated_at
		 FROM subscriptions WHERE user_id = ?`, userID,
	).Scan(&sub.UserID, &sub.Tier, &isTrial, &nextPayment, &customerID, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.Subscription{UserID: userID, Tier: model.TierFree}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	sub.IsTrial = isTrial != 0
	if nextPayment.Valid {
		sub.NextPaymentDate = &nextPayment.Time
	}
	sub.StripeCustomerID = customerID.String
	return &sub, nil
}

// GetByCustomerID resolves a subscription from a stripe customer id,
// used by the webhook handler.
func (s *SubscriptionStore) GetByCustomerID(customerID string) (*model.Subscription, error) {
	var sub model.Subscription
	var isTrial int
	var nextPayment sql.NullTime
	var storedCustomerID sql.NullString

	err := s.db.QueryRow(
		`SELECT user_id, tier, is_trial, next_payment_date, stripe_customer_id, updated_at
		 FROM subscriptions WHERE stripe_customer_id = ?`, customerID,
	).Scan(&sub.UserID, &sub.Tier, &isTrial, &nextPayment, &storedCustomerID, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by customer: %w", err)
	}

	sub.IsTrial = isTrial != 0
	if nextPayment.Valid {
		sub.NextPaymentDate = &nextPayment.Time
	}
	sub.StripeCustomerID = storedCustomerID.String
	return &sub, nil
}

// Upsert writes the user's current tier state.
func (s *SubscriptionStore) Upsert(userID, tier string, isTrial bool, nextPayment *time.Time, customerID string) error {
	var trial int
	if isTrial {
		trial = 1
	}
	var next sql.NullTime
	if nextPayment != nil {
		next = sql.NullTime{Time: nextPayment.UTC(), Valid: true}
	}
	var cust sql.NullString
	if customerID != "" {
		cust = sql.NullString{String: customerID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, tier, is_trial, next_payment_date, stripe_customer_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   tier = excluded.tier,
		   is_trial = excluded.is_trial,
		   next_payment_date = excluded.next_payment_date,
		   stripe_customer_id = COALESCE(excluded.stripe_customer_id, subscriptions.stripe_customer_id),
		   updated_at = excluded.updated_at`,
		userID, tier, trial, next, cust,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
