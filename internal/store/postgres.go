package store

import (
	"context"
	"errors"

	"tunebridge/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	var a models.Account
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, stripe_customer_id, verified,
			verification_token, last_payment_intent_id, tier, created_at, updated_at
		FROM accounts WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.StripeCustomerID, &a.Verified,
		&a.VerificationToken, &a.LastPaymentIntentID, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	return a, err
}

func (p *Postgres) Insert(ctx context.Context, account models.Account) (models.Account, error) {
	var a models.Account
	err := p.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, username, password_hash, stripe_customer_id, verified,
			verification_token, last_payment_intent_id, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, email, username, password_hash, stripe_customer_id, verified,
			verification_token, last_payment_intent_id, tier, created_at, updated_at`,
		account.Email, account.Username, account.PasswordHash, account.StripeCustomerID,
		account.Verified, account.VerificationToken, account.LastPaymentIntentID, account.Tier,
	).Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.StripeCustomerID, &a.Verified,
		&a.VerificationToken, &a.LastPaymentIntentID, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, ErrDuplicateEmail
		}
		return models.Account{}, err
	}
	return a, nil
}

func (p *Postgres) MarkVerified(ctx context.Context, email string) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts SET verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE email = $1`, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateTier(ctx context.Context, email, tier string) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts SET tier = $1, updated_at = NOW()
		WHERE email = $2`, tier, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RecordCheckout(ctx context.Context, email, paymentIntentID string) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts SET tier = $1, last_payment_intent_id = $2, updated_at = NOW()
		WHERE email = $3`, models.TierPremium, paymentIntentID, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ClearSubscription(ctx context.Context, email string) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts SET tier = $1, last_payment_intent_id = NULL, updated_at = NOW()
		WHERE email = $2`, models.TierFree, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
