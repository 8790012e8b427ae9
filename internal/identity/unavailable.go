package identity

import (
	"context"
	"errors"
)

// Unavailable is the verifier used when Google sign-in is not configured;
// every token is rejected.
type Unavailable struct{}

func (Unavailable) VerifyIDToken(ctx context.Context, rawToken string) (string, error) {
	return "", errors.New("google sign-in not configured")
}
