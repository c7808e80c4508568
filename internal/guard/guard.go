// Package guard gates operations on the presented session token. Each check
// is a pure function of the token string; no state is carried across
// requests.
package guard

import (
	"errors"

	"github.com/identserv/identityd/internal/token"
)

var (
	// ErrMissingCredential signals that no token was presented at all.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidOrExpired signals that a presented token failed verification,
	// for any reason.
	ErrInvalidOrExpired = errors.New("invalid or expired token")

	// ErrForbidden signals an authenticated caller without the required
	// permission.
	ErrForbidden = errors.New("permission denied")
)

// Verifier is the token-service capability the gate needs.
type Verifier interface {
	Verify(tokenString string) *token.Claims
}

// RequireAuthenticated checks that a token was presented and verifies it,
// returning the embedded claims.
func RequireAuthenticated(v Verifier, tokenString string) (*token.Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingCredential
	}
	claims := v.Verify(tokenString)
	if claims == nil {
		return nil, ErrInvalidOrExpired
	}
	return claims, nil
}

// RequirePermission runs RequireAuthenticated and then checks that the
// claims' embedded permission list contains perm.
func RequirePermission(v Verifier, tokenString, perm string) (*token.Claims, error) {
	claims, err := RequireAuthenticated(v, tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.HasPermission(perm) {
		return nil, ErrForbidden
	}
	return claims, nil
}
