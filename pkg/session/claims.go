package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for access-token introspection.
var (
	ErrMissingToken = errors.New("session.claims.missing_token")
	ErrInvalidToken = errors.New("session.claims.invalid_token")
)

// TokenPair is the in-memory representation of the session credentials.
// At most one pair is current at any time; the refresh token rotates on
// every successful refresh exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Claims represent the user payload embedded inside platform access tokens.
type Claims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// GetUserID returns the user identifier from the session.
func (claims *Claims) GetUserID() string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// GetUserEmail returns the email associated with the session.
func (claims *Claims) GetUserEmail() string {
	if claims == nil {
		return ""
	}
	return claims.UserEmail
}

// GetUserDisplayName returns the display name stored in the session.
func (claims *Claims) GetUserDisplayName() string {
	if claims == nil {
		return ""
	}
	return claims.UserDisplayName
}

// GetUserRoles returns the roles associated with the session.
func (claims *Claims) GetUserRoles() []string {
	if claims == nil {
		return nil
	}
	return claims.UserRoles
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// ExpiredAt reports whether the access token is past its expiry at the given instant.
func (claims *Claims) ExpiredAt(now time.Time) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return now.After(claims.ExpiresAt.Time)
}

// DecodeClaims parses the user payload out of an access token without
// verifying the signature. The client holds no signing key; the server is
// the trust root and re-validates every request. The decode exists for
// expiry introspection and for surfacing the user payload locally.
func DecodeClaims(accessToken string) (*Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("session.claims.decode: %w", ErrMissingToken)
	}
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("session.claims.decode: %w", ErrInvalidToken)
	}
	return claims, nil
}
