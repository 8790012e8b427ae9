package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// GoogleVerifier validates Google ID tokens and resolves them to the
// authenticated email address.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewGoogleVerifier(ctx context.Context, issuerURL, clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover identity provider: %w", err)
	}
	return &GoogleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *GoogleVerifier) VerifyIDToken(ctx context.Context, rawToken string) (string, error) {
	idToken, err := g.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("parse claims: %w", err)
	}
	if claims.Email == "" {
		return "", errors.New("missing email in id token")
	}
	if !claims.EmailVerified {
		return "", errors.New("email not verified by identity provider")
	}
	return claims.Email, nil
}
