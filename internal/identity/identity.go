// Package identity derives the current user from a Supabase access token.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken   = errors.New("no access token configured")
	ErrNoSubject = errors.New("access token has no subject")
)

// Claims is the subset of a Supabase access token the client reads.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Identity is the authenticated user the daemon acts as.
type Identity struct {
	UserID      string
	Email       string
	Role        string
	DisplayName string
	ExpiresAt   time.Time
	Token       string
}

// FromToken reads the identity out of token. The signature is not checked:
// the token was issued to this client and the server validates it on every call.
func FromToken(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrNoSubject
	}

	id := &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
		Token:  token,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	for _, key := range []string{"full_name", "name"} {
		if s, ok := claims.UserMetadata[key].(string); ok && s != "" {
			id.DisplayName = s
			break
		}
	}
	return id, nil
}

// Expired reports whether the token has an expiry that is not after now.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !i.ExpiresAt.After(now)
}
