package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"tunebridge/internal/config"
	"tunebridge/internal/models"
	"tunebridge/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("please verify your email")
	ErrInvalidToken       = errors.New("invalid token or email")
	ErrInvalidGoogleToken = errors.New("google login failed")
	ErrNoBillingCustomer  = errors.New("user or stripe customer not found")
)

// Billing wraps the payment provider.
type Billing interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (string, error)
	HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error)
}

// Mailer sends the verification email for a freshly signed-up account.
type Mailer interface {
	SendVerificationEmail(to, token string) error
}

// TokenVerifier resolves a federated identity token to a verified email.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawToken string) (string, error)
}

type Service struct {
	accounts store.Accounts
	billing  Billing
	mailer   Mailer
	verifier TokenVerifier
	config   config.Config
}

func New(accounts store.Accounts, billing Billing, mailer Mailer, verifier TokenVerifier, cfg config.Config) *Service {
	return &Service{accounts: accounts, billing: billing, mailer: mailer, verifier: verifier, config: cfg}
}

// Signup creates the account and dispatches the verification email. The
// account is not rolled back if the email send fails; the caller sees the
// error but the record stays (known gap, matches upstream behavior).
func (s *Service) Signup(ctx context.Context, email, password, paymentIntentID string) error {
	if email == "" || password == "" {
		return ErrInvalidRequest
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	customerID, err := s.billing.CreateCustomer(ctx, email)
	if err != nil {
		return err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	token, err := newVerificationToken()
	if err != nil {
		return err
	}

	hash := string(passwordHash)
	account := models.Account{
		Email:             email,
		Username:          localPart(email),
		PasswordHash:      &hash,
		StripeCustomerID:  customerID,
		Verified:          false,
		VerificationToken: &token,
		Tier:              models.TierFree,
	}
	if paymentIntentID != "" {
		account.Tier = models.TierPremium
		account.LastPaymentIntentID = &paymentIntentID
	}

	if _, err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return ErrEmailAlreadyExists
		}
		return err
	}

	return s.mailer.SendVerificationEmail(email, token)
}

func (s *Service) VerifyEmail(ctx context.Context, email, token string) error {
	if email == "" || token == "" {
		return ErrInvalidToken
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if account.VerificationToken == nil || *account.VerificationToken != token {
		return ErrInvalidToken
	}
	return s.accounts.MarkVerified(ctx, email)
}

// Login validates password credentials. Unknown emails and wrong passwords
// are indistinguishable; an existing unverified account is reported as such
// before the password is compared.
func (s *Service) Login(ctx context.Context, email, password string) (models.Account, error) {
	if email == "" || password == "" {
		return models.Account{}, ErrInvalidCredentials
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, err
	}
	if account.PasswordHash == nil {
		return models.Account{}, ErrInvalidCredentials
	}
	if !account.Verified {
		return models.Account{}, ErrEmailNotVerified
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(password)); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// GoogleLogin verifies the supplied ID token and lazily creates a verified
// account for the authenticated email. Reports whether the account is new.
func (s *Service) GoogleLogin(ctx context.Context, rawToken string) (models.Account, bool, error) {
	if rawToken == "" {
		return models.Account{}, false, ErrInvalidGoogleToken
	}
	email, err := s.verifier.VerifyIDToken(ctx, rawToken)
	if err != nil {
		return models.Account{}, false, ErrInvalidGoogleToken
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Account{}, false, err
	}

	customerID, err := s.billing.CreateCustomer(ctx, email)
	if err != nil {
		return models.Account{}, false, err
	}
	created, err := s.accounts.Insert(ctx, models.Account{
		Email:            email,
		Username:         localPart(email),
		StripeCustomerID: customerID,
		Verified:         true,
		Tier:             models.TierFree,
	})
	if err != nil {
		return models.Account{}, false, err
	}
	return created, true, nil
}

func (s *Service) GetAccount(ctx context.Context, email string) (models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrNotFound
	}
	return account, err
}

func (s *Service) PaymentStatus(ctx context.Context, email string) (string, error) {
	account, err := s.GetAccount(ctx, email)
	if err != nil {
		return "", err
	}
	return account.Tier, nil
}

func (s *Service) CreatePaymentIntent(ctx context.Context) (string, error) {
	return s.billing.CreatePaymentIntent(ctx, s.config.PaymentIntentAmountCents, s.config.StripeCurrency)
}

// CompleteCheckout marks the account Premium and records the payment intent.
// Idempotent in tier: repeated calls leave the same end state.
func (s *Service) CompleteCheckout(ctx context.Context, email, paymentIntentID string) error {
	err := s.accounts.RecordCheckout(ctx, email, paymentIntentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) CheckCreditCard(ctx context.Context, email string) (bool, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrNoBillingCustomer
		}
		return false, err
	}
	if account.StripeCustomerID == "" {
		return false, ErrNoBillingCustomer
	}
	return s.billing.HasDefaultPaymentMethod(ctx, account.StripeCustomerID)
}

func (s *Service) UpgradeToPremium(ctx context.Context, email string) error {
	err := s.accounts.UpdateTier(ctx, email, models.TierPremium)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// CancelPremium downgrades to Free and clears the last payment intent,
// regardless of the prior tier.
func (s *Service) CancelPremium(ctx context.Context, email string) error {
	err := s.accounts.ClearSubscription(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func newVerificationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
