package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"tunebridge/internal/config"
	"tunebridge/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	svc       *services.Service
	generator Generator
	cfg       config.Config
}

func NewServer(svc *services.Service, generator Generator, cfg config.Config) *Server {
	return &Server{svc: svc, generator: generator, cfg: cfg}
}

func loggingRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				logrus.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
				}).Errorf("panic recovered: %v\n%s", rvr, debug.Stack())
				respondMessage(w, http.StatusInternalServerError, fmt.Sprintf("internal server error: %v", rvr))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			logrus.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingRecoverer)
	r.Use(requestLogger)
	r.Use(s.corsMiddleware)

	r.Post("/api/process-video", s.handleProcessVideo)

	r.Post("/signup", s.handleSignup)
	r.Get("/verify-email", s.handleVerifyEmail)
	r.Post("/login", s.handleLogin)
	r.Post("/google-login", s.handleGoogleLogin)
	r.Post("/get-user", s.handleGetUser)
	r.Post("/check-payment-status", s.handleCheckPaymentStatus)
	r.Post("/create-payment-intent", s.handleCreatePaymentIntent)
	r.Post("/complete-checkout", s.handleCompleteCheckout)
	r.Post("/check-credit-card", s.handleCheckCreditCard)
	r.Post("/upgrade-to-premium", s.handleUpgradeToPremium)
	r.Post("/cancel-premium", s.handleCancelPremium)

	return r
}

// corsMiddleware restricts browser callers to the configured origin
// allow-list. Requests without a matching Origin get no CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := s.svc.Signup(r.Context(), req.Email, req.Password, req.PaymentIntentID); err != nil {
		s.respondServiceError(w, r, err, "Signup error")
		return
	}
	respondMessage(w, http.StatusOK, "Signup successful, please verify your email")
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	email := r.URL.Query().Get("email")
	if err := s.svc.VerifyEmail(r.Context(), email, token); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			respondText(w, http.StatusBadRequest, "Invalid token or email.")
			return
		}
		logError(r, err, "verify email")
		respondText(w, http.StatusInternalServerError, "Verification error.")
		return
	}
	respondText(w, http.StatusOK, "Email verified successfully!")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	account, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondServiceError(w, r, err, "Login error")
		return
	}

	resp := map[string]any{
		"message": "Login successful",
		"email":   account.Email,
	}
	if token, err := s.generateJWT(account); err == nil {
		resp["token"] = token
	}
	respondJSON(w, http.StatusOK, resp)
}

type googleLoginRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusUnauthorized, "Google login failed")
		return
	}
	account, isNewUser, err := s.svc.GoogleLogin(r.Context(), req.Token)
	if err != nil {
		s.respondServiceError(w, r, err, "Google login failed")
		return
	}

	resp := map[string]any{
		"message":   "Google login successful",
		"email":     account.Email,
		"isNewUser": isNewUser,
	}
	if token, err := s.generateJWT(account); err == nil {
		resp["token"] = token
	}
	respondJSON(w, http.StatusOK, resp)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	account, err := s.svc.GetAccount(r.Context(), req.Email)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"username": account.Username,
		"email":    account.Email,
	})
}

func (s *Server) handleCheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	tier, err := s.svc.PaymentStatus(r.Context(), req.Email)
	if err != nil {
		s.respondServiceError(w, r, err, "Server error while checking account status.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"accountType": tier})
}

func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	clientSecret, err := s.svc.CreatePaymentIntent(r.Context())
	if err != nil {
		logError(r, err, "create payment intent")
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": err.Error()},
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"clientSecret": clientSecret})
}

type completeCheckoutRequest struct {
	Email           string `json:"email"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Server) handleCompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req completeCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := s.svc.CompleteCheckout(r.Context(), req.Email, req.PaymentIntentID); err != nil {
		s.respondServiceError(w, r, err, "Server error while updating account.")
		return
	}
	respondMessage(w, http.StatusOK, "Checkout completed successfully. Account is now Premium.")
}

func (s *Server) handleCheckCreditCard(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	hasCreditCard, err := s.svc.CheckCreditCard(r.Context(), req.Email)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to check credit card status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"hasCreditCard": hasCreditCard})
}

func (s *Server) handleUpgradeToPremium(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := s.svc.UpgradeToPremium(r.Context(), req.Email); err != nil {
		s.respondServiceError(w, r, err, "Failed to upgrade user")
		return
	}
	respondMessage(w, http.StatusOK, "User upgraded to Premium")
}

func (s *Server) handleCancelPremium(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := s.svc.CancelPremium(r.Context(), req.Email); err != nil {
		s.respondServiceError(w, r, err, "Failed to cancel subscription.")
		return
	}
	respondMessage(w, http.StatusOK, "Subscription cancelled, user downgraded to Free.")
}

// respondServiceError maps service sentinels to statuses in one place;
// unknown errors become a 500 with the handler's fallback message.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		respondMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrNoBillingCustomer):
		respondMessage(w, http.StatusNotFound, "User or Stripe customer not found")
	case errors.Is(err, services.ErrEmailAlreadyExists):
		respondMessage(w, http.StatusBadRequest, "Email already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrEmailNotVerified):
		respondMessage(w, http.StatusUnauthorized, "Please verify your email")
	case errors.Is(err, services.ErrInvalidGoogleToken):
		respondMessage(w, http.StatusUnauthorized, "Google login failed")
	case errors.Is(err, services.ErrInvalidToken):
		respondMessage(w, http.StatusBadRequest, "Invalid token or email")
	case errors.Is(err, services.ErrInvalidRequest):
		respondMessage(w, http.StatusBadRequest, "Invalid request")
	default:
		logError(r, err, fallback)
		respondMessage(w, http.StatusInternalServerError, fallback)
	}
}

func logError(r *http.Request, err error, context string) {
	logrus.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
		"context":    context,
	}).WithError(err).Error("request failed")
}
