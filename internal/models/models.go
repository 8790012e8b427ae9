package models

import "time"

// Account is one row per unique email. PasswordHash is nil for accounts
// created through Google sign-in only.
type Account struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	Username            string    `json:"username"`
	PasswordHash        *string   `json:"-"`
	StripeCustomerID    string    `json:"-"`
	Verified            bool      `json:"verified"`
	VerificationToken   *string   `json:"-"`
	LastPaymentIntentID *string   `json:"-"`
	Tier                string    `json:"tier"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

const (
	TierFree    = "Free"
	TierPremium = "Premium"
)
