package authserver

import "errors"

var (
	// ErrRefreshTokenNotFound indicates no refresh token matched the provided opaque value.
	ErrRefreshTokenNotFound = errors.New("authserver.refresh.not_found")
	// ErrRefreshTokenRevoked indicates the refresh token has been revoked.
	ErrRefreshTokenRevoked = errors.New("authserver.refresh.revoked")
	// ErrRefreshTokenExpired indicates the refresh token has exceeded its expiry.
	ErrRefreshTokenExpired = errors.New("authserver.refresh.expired")
	// ErrRefreshTokenEmptyOpaque indicates the provided opaque token text is empty.
	ErrRefreshTokenEmptyOpaque = errors.New("authserver.refresh.empty_token")

	// ErrUserNotFound indicates no user matched the identifier or user id.
	ErrUserNotFound = errors.New("authserver.users.not_found")
	// ErrInvalidCredentials indicates the identifier/password pair was not accepted.
	ErrInvalidCredentials = errors.New("authserver.users.invalid_credentials")
	// ErrIdentifierTaken indicates a registration against an existing identifier.
	ErrIdentifierTaken = errors.New("authserver.users.identifier_taken")

	// ErrMissingSigningKey indicates the server configuration lacks the HS256 signing secret.
	ErrMissingSigningKey = errors.New("authserver.config.missing_signing_key")
	// ErrInvalidAccessTTL indicates a non-positive access token lifetime.
	ErrInvalidAccessTTL = errors.New("authserver.config.invalid_access_ttl")
	// ErrInvalidRefreshTTL indicates a non-positive refresh token lifetime.
	ErrInvalidRefreshTTL = errors.New("authserver.config.invalid_refresh_ttl")
)
