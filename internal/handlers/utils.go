package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/identserv/identityd/internal/token"
)

// tokenCookieName is the cookie (and fallback header) carrying the session
// token.
const tokenCookieName = "jwt"

type contextKey string

const contextClaimsKey contextKey = "claims"

// MessageResponse is the envelope every non-payload response uses.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// presentedToken extracts the session token from the jwt cookie, falling back
// to a header of the same name. Empty means no credential was presented.
func presentedToken(r *http.Request) string {
	if cookie, err := r.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.Header.Get(tokenCookieName))
}

func claimsFromContext(ctx context.Context) (*token.Claims, error) {
	claims, ok := ctx.Value(contextClaimsKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, errors.New("missing claims")
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

func parsePagination(r *http.Request) (page, perPage int, err error) {
	page = defaultPage
	perPage = defaultPerPage

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		perPage, err = strconv.Atoi(rawLimit)
		if err != nil || perPage < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	return page, perPage, nil
}

// missingFields builds the original "Require a and b." validation message.
func missingFields(fields ...string) string {
	return "Require " + strings.Join(fields, " and ") + "."
}
