package handlers

import (
	"errors"
	"net/http"

	"github.com/identserv/identityd/internal/guard"
)

// Stable client-facing messages for gate failures. They deliberately do not
// distinguish why a token failed verification.
const (
	msgMissingCredential = "Missing verification letter."
	msgTokenExpired      = "Token expired."
	msgPermissionDenied  = "Permission denied."
)

// RequireAuth verifies the presented token and injects its claims into the
// request context.
func RequireAuth(verifier guard.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := guard.RequireAuthenticated(verifier, presentedToken(r))
			if err != nil {
				writeGuardError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission verifies the presented token and checks the embedded
// permission list before passing the request on.
func RequirePermission(verifier guard.Verifier, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := guard.RequirePermission(verifier, presentedToken(r), permission)
			if err != nil {
				writeGuardError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func writeGuardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guard.ErrMissingCredential):
		writeMessage(w, http.StatusUnauthorized, msgMissingCredential)
	case errors.Is(err, guard.ErrInvalidOrExpired):
		writeMessage(w, http.StatusUnauthorized, msgTokenExpired)
	case errors.Is(err, guard.ErrForbidden):
		writeMessage(w, http.StatusForbidden, msgPermissionDenied)
	default:
		writeMessage(w, http.StatusUnauthorized, msgMissingCredential)
	}
}
