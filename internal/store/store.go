package store

import (
	"context"
	"errors"

	"tunebridge/internal/models"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Accounts is the persistence contract for account records. The Postgres
// implementation lives in this package; tests substitute in-memory fakes.
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	Insert(ctx context.Context, account models.Account) (models.Account, error)
	MarkVerified(ctx context.Context, email string) error
	UpdateTier(ctx context.Context, email, tier string) error
	RecordCheckout(ctx context.Context, email, paymentIntentID string) error
	ClearSubscription(ctx context.Context, email string) error
}
