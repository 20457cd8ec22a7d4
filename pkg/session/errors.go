package session

import "errors"

// Sentinel errors exposed by the session client.
var (
	// ErrAuthExpired indicates the server rejected the access token as expired.
	// Handled internally by the refresh coordinator; callers only see it when a
	// request carried no recoverable credential.
	ErrAuthExpired = errors.New("session.auth_expired")
	// ErrRefreshRejected indicates the refresh token was rejected (expired,
	// already rotated, or revoked). Terminal for the current session.
	ErrRefreshRejected = errors.New("session.refresh_rejected")
	// ErrNetworkFailure indicates a transient transport error. The vault is
	// left untouched; the caller may retry.
	ErrNetworkFailure = errors.New("session.network_failure")
	// ErrLoginRejected indicates the login credentials were not accepted.
	ErrLoginRejected = errors.New("session.login_rejected")
	// ErrLogoutServerFailure indicates the logout call failed server-side for a
	// reason other than an expired session. Local state is cleared regardless.
	ErrLogoutServerFailure = errors.New("session.logout_server_failure")
	// ErrNotAuthenticated indicates no session is established.
	ErrNotAuthenticated = errors.New("session.not_authenticated")
	// ErrUnauthorized indicates a 401 whose error body did not name token
	// expiry; refreshing would not help.
	ErrUnauthorized = errors.New("session.unauthorized")

	// ErrMissingBaseURL indicates the client configuration lacks the API base URL.
	ErrMissingBaseURL = errors.New("session.config.missing_base_url")
	// ErrMissingVault indicates the client configuration lacks a credential vault.
	ErrMissingVault = errors.New("session.config.missing_vault")
	// ErrInvalidRefreshTimeout indicates a non-positive refresh exchange timeout.
	ErrInvalidRefreshTimeout = errors.New("session.config.invalid_refresh_timeout")
	// ErrMissingCredentials indicates a login request without usable credentials.
	ErrMissingCredentials = errors.New("session.login.missing_credentials")
)
