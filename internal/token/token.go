// Package token issues and verifies the stateless session tokens. A token is
// an HS256 JWT carrying the user's identity and the permission snapshot taken
// at issuance. There is no revocation list: account and permission changes do
// not reach a user until their token expires and is reissued, a staleness
// window equal to the token TTL.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/identserv/identityd/types"
)

// Claims is the signed payload embedded in a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID      int      `json:"user_id"`
	PublicID    string   `json:"uuid"`
	Permissions []string `json:"permissions"`
	Groups      []string `json:"groups,omitempty"`
}

// HasPermission reports whether the embedded permission list contains perm.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Service signs and verifies session tokens with a process-wide secret,
// injected at construction.
type Service struct {
	secret        []byte
	ttl           time.Duration
	includeGroups bool
}

// NewService constructs a Service. includeGroups controls whether issued
// tokens carry the user's group names next to the permission list.
func NewService(secret string, ttl time.Duration, includeGroups bool) *Service {
	return &Service{
		secret:        []byte(secret),
		ttl:           ttl,
		includeGroups: includeGroups,
	}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the user embedding the given permission and group
// snapshot, expiring after the configured TTL.
func (s *Service) Issue(user types.User, permissions, groups []string) (string, error) {
	return s.IssueWithTTL(user, permissions, groups, s.ttl)
}

// IssueWithTTL signs a token with an explicit lifetime.
func (s *Service) IssueWithTTL(user types.User, permissions, groups []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.PublicID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:      user.ID,
		PublicID:    user.PublicID,
		Permissions: permissions,
	}
	if claims.Permissions == nil {
		claims.Permissions = []string{}
	}
	if s.includeGroups {
		claims.Groups = groups
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the claims, or nil when the
// token is malformed, tampered with, or expired. The failure mode is
// deliberately not distinguished.
func (s *Service) Verify(tokenString string) *Claims {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.PublicID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return claims
}
