package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tunebridge/internal/cliptune"
	"tunebridge/internal/config"
	"tunebridge/internal/models"
	"tunebridge/internal/services"
	"tunebridge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAccounts struct {
	byEmail map[string]models.Account
	nextID  int64
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: make(map[string]models.Account)}
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (models.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (m *memAccounts) Insert(_ context.Context, account models.Account) (models.Account, error) {
	if _, ok := m.byEmail[account.Email]; ok {
		return models.Account{}, store.ErrDuplicateEmail
	}
	m.nextID++
	account.ID = m.nextID
	m.byEmail[account.Email] = account
	return account, nil
}

func (m *memAccounts) MarkVerified(_ context.Context, email string) error {
	a, ok := m.byEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	a.Verified = true
	a.VerificationToken = nil
	m.byEmail[email] = a
	return nil
}

func (m *memAccounts) UpdateTier(_ context.Context, email, tier string) error {
	a, ok := m.byEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	a.Tier = tier
	m.byEmail[email] = a
	return nil
}

func (m *memAccounts) RecordCheckout(_ context.Context, email, paymentIntentID string) error {
	a, ok := m.byEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	a.Tier = models.TierPremium
	a.LastPaymentIntentID = &paymentIntentID
	m.byEmail[email] = a
	return nil
}

func (m *memAccounts) ClearSubscription(_ context.Context, email string) error {
	a, ok := m.byEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	a.Tier = models.TierFree
	a.LastPaymentIntentID = nil
	m.byEmail[email] = a
	return nil
}

type stubBilling struct {
	hasPaymentMethod bool
	intentErr        error
}

func (b *stubBilling) CreateCustomer(_ context.Context, email string) (string, error) {
	return "cus_stub", nil
}

func (b *stubBilling) CreatePaymentIntent(_ context.Context, amountCents int64, currency string) (string, error) {
	if b.intentErr != nil {
		return "", b.intentErr
	}
	return "pi_secret_stub", nil
}

func (b *stubBilling) HasDefaultPaymentMethod(_ context.Context, customerID string) (bool, error) {
	return b.hasPaymentMethod, nil
}

type stubMailer struct {
	lastToken string
	err       error
}

func (m *stubMailer) SendVerificationEmail(to, token string) error {
	if m.err != nil {
		return m.err
	}
	m.lastToken = token
	return nil
}

type stubVerifier struct {
	emails map[string]string
}

func (v *stubVerifier) VerifyIDToken(_ context.Context, rawToken string) (string, error) {
	if email, ok := v.emails[rawToken]; ok {
		return email, nil
	}
	return "", errors.New("bad token")
}

type testEnv struct {
	server   *httptest.Server
	accounts *memAccounts
	billing  *stubBilling
	mailer   *stubMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accounts := newMemAccounts()
	bill := &stubBilling{}
	mailer := &stubMailer{}
	verifier := &stubVerifier{emails: map[string]string{"good-token": "g@x.com"}}
	cfg := config.Config{
		StripeCurrency:           "usd",
		PaymentIntentAmountCents: 1000,
		AllowedOrigins:           []string{"https://app.example.com"},
		JWTSecretKey:             "test-secret",
		JWTExpiryHours:           1,
	}
	svc := services.New(accounts, bill, mailer, verifier, cfg)
	srv := NewServer(svc, &stubGenerator{}, cfg)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, accounts: accounts, billing: bill, mailer: mailer}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (e *testEnv) signup(t *testing.T, email, password string) {
	t.Helper()
	resp, _ := e.postJSON(t, "/signup", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignupEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/signup", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Signup successful, please verify your email", body["message"])

	resp, body = env.postJSON(t, "/signup", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email already exists", body["message"])
}

func TestSignupEmailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	resp, body := env.postJSON(t, "/signup", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Signup error", body["message"])
	_, ok := env.accounts.byEmail["a@x.com"]
	assert.True(t, ok)
}

func TestVerifyEmailEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "pw")

	resp, err := http.Get(env.server.URL + "/verify-email?token=wrong&email=a@x.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Invalid token or email.", string(raw))
	assert.False(t, env.accounts.byEmail["a@x.com"].Verified)

	resp, err = http.Get(env.server.URL + "/verify-email?token=" + env.mailer.lastToken + "&email=a@x.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "Email verified successfully!", string(raw))
	assert.True(t, env.accounts.byEmail["a@x.com"].Verified)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "pw")

	resp, body := env.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Please verify your email", body["message"])

	resp, err := http.Get(env.server.URL + "/verify-email?token=" + env.mailer.lastToken + "&email=a@x.com")
	require.NoError(t, err)
	resp.Body.Close()

	resp, body = env.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["message"])

	resp, unknownBody := env.postJSON(t, "/login", map[string]string{"email": "nobody@x.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, body, unknownBody, "unknown email must be indistinguishable from wrong password")

	resp, body = env.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotEmpty(t, body["token"])
}

func TestGoogleLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/google-login", map[string]string{"token": "bad"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Google login failed", body["message"])

	resp, body = env.postJSON(t, "/google-login", map[string]string{"token": "good-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Google login successful", body["message"])
	assert.Equal(t, "g@x.com", body["email"])
	assert.Equal(t, true, body["isNewUser"])

	resp, body = env.postJSON(t, "/google-login", map[string]string{"token": "good-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isNewUser"])
}

func TestGetUserEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "someone@example.org", "pw")

	resp, body := env.postJSON(t, "/get-user", map[string]string{"email": "someone@example.org"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "someone", body["username"])
	assert.Equal(t, "someone@example.org", body["email"])

	resp, body = env.postJSON(t, "/get-user", map[string]string{"email": "nobody@example.org"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["message"])
}

func TestPaymentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "pw")

	resp, body := env.postJSON(t, "/check-payment-status", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TierFree, body["accountType"])

	resp, body = env.postJSON(t, "/create-payment-intent", map[string]string{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pi_secret_stub", body["clientSecret"])

	env.billing.intentErr = errors.New("card declined")
	resp, body = env.postJSON(t, "/create-payment-intent", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotNil(t, body["error"])

	resp, body = env.postJSON(t, "/complete-checkout", map[string]string{"email": "a@x.com", "paymentIntentId": "pi_77"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Checkout completed successfully. Account is now Premium.", body["message"])

	resp, body = env.postJSON(t, "/check-payment-status", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TierPremium, body["accountType"])

	env.billing.hasPaymentMethod = true
	resp, body = env.postJSON(t, "/check-credit-card", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["hasCreditCard"])

	resp, body = env.postJSON(t, "/check-credit-card", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User or Stripe customer not found", body["message"])

	resp, body = env.postJSON(t, "/cancel-premium", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Subscription cancelled, user downgraded to Free.", body["message"])
	a := env.accounts.byEmail["a@x.com"]
	assert.Equal(t, models.TierFree, a.Tier)
	assert.Nil(t, a.LastPaymentIntentID)

	resp, body = env.postJSON(t, "/upgrade-to-premium", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User upgraded to Premium", body["message"])

	resp, body = env.postJSON(t, "/upgrade-to-premium", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["message"])
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com", "pw")

	resp, err := http.Get(env.server.URL + "/verify-email?token=" + env.mailer.lastToken + "&email=a@x.com")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	loginResp, body := env.postJSON(t, "/login", map[string]string{"email": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	assert.Equal(t, "a@x.com", body["email"])

	statusResp, statusBody := env.postJSON(t, "/check-payment-status", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	assert.Equal(t, models.TierFree, statusBody["accountType"])
}

func TestCORSAllowList(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, env.server.URL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

var _ Generator = (*stubGenerator)(nil)

type stubGenerator struct {
	ticket      cliptune.Ticket
	ticketErr   error
	uploadErr   error
	generateErr error
	result      json.RawMessage

	ticketCalls   int
	uploadCalls   int
	generateCalls int

	uploadedContentType string
	uploadedBytes       []byte
	lastParams          cliptune.GenerateParams
}

func (g *stubGenerator) RequestUploadTicket(_ context.Context) (cliptune.Ticket, error) {
	g.ticketCalls++
	if g.ticketErr != nil {
		return cliptune.Ticket{}, g.ticketErr
	}
	if g.ticket == (cliptune.Ticket{}) {
		return cliptune.Ticket{PutURL: "https://storage.example.com/put", GCSURI: "gs://bucket/clip"}, nil
	}
	return g.ticket, nil
}

func (g *stubGenerator) Upload(_ context.Context, putURL, contentType string, body io.Reader) error {
	g.uploadCalls++
	if g.uploadErr != nil {
		return g.uploadErr
	}
	g.uploadedContentType = contentType
	g.uploadedBytes, _ = io.ReadAll(body)
	return nil
}

func (g *stubGenerator) Generate(_ context.Context, params cliptune.GenerateParams) (json.RawMessage, error) {
	g.generateCalls++
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	g.lastParams = params
	if g.result == nil {
		return json.RawMessage(`{"status":"done"}`), nil
	}
	return g.result, nil
}
