package httpapi

import (
	"errors"
	"time"

	"tunebridge/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var errJWTNotConfigured = errors.New("JWT secret key not configured")

type sessionClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// generateJWT issues a session token for a logged-in account. Callers omit
// the token from the response when no secret is configured.
func (s *Server) generateJWT(account models.Account) (string, error) {
	if s.cfg.JWTSecretKey == "" {
		return "", errJWTNotConfigured
	}

	claims := sessionClaims{
		Email:    account.Email,
		Username: account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTExpiry())),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "tunebridge",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecretKey))
}
