package authserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
)

// mintAccessToken creates a signed HS256 access token carrying the user
// payload the client decodes.
func mintAccessToken(clock session.Clock, profile Profile, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	issuedAt := clock.Now()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		UserID:          profile.UserID,
		UserEmail:       profile.Email,
		UserDisplayName: profile.DisplayName,
		UserRoles:       profile.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   profile.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(signingKey)
	return signed, expiresAt, signErr
}
