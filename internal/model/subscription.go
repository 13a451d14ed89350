package model

import "time"

// Subscription tiers.
const (
	TierFree = "free"
	TierPlus = "plus"
)

type Subscription struct {
	UserID           string     `json:"user_id"`
	Tier             string     `json:"tier"`
	IsTrial          bool       `json:"is_trial"`
	NextPaymentDate  *time.Time `json:"next_payment_date,omitempty"`
	StripeCustomerID string     `json:"-"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasPlusAccess reports whether the subscription grants assistant access.
func (s *Subscription) HasPlusAccess() bool {
	return s != nil && s.Tier == TierPlus
}
