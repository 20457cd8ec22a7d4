// Package session implements the authenticated-session lifecycle for the
// platform API: credential storage through a vault, bearer-token dispatch,
// single-flight token refresh with rotation, and fail-closed logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hmabdullah7770/sessionkit/pkg/vault"
	"go.uber.org/zap"
)

// LogoutStatus reports how a logout concluded.
type LogoutStatus string

const (
	// LogoutStatusUnknown is returned alongside an error that left the
	// session outcome unresolved (a transport failure before the server
	// answered).
	LogoutStatusUnknown LogoutStatus = ""
	// StatusLoggedOut means the server acknowledged the logout, or local
	// state was cleared despite a server-side failure.
	StatusLoggedOut LogoutStatus = "logged_out"
	// StatusAlreadyLoggedOut means the session was already dead, locally or
	// server-side. Local state is cleared; this is a success.
	StatusAlreadyLoggedOut LogoutStatus = "already_logged_out"
)

// Credentials carries one login attempt. Exactly one of the password pair or
// GoogleIDToken must be populated.
type Credentials struct {
	Identifier    string
	Password      string
	GoogleIDToken string
}

// Snapshot is a point-in-time view of the session state.
type Snapshot struct {
	IsAuthenticated bool
	User            *Claims
}

type passwordLoginRequestBody struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type googleLoginRequestBody struct {
	GoogleIDToken string `json:"google_id_token"`
}

type loginResponseBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client owns the session lifecycle against one platform API. All methods
// are safe for concurrent use.
type Client struct {
	credentialVault   vault.Vault
	requestDispatcher *dispatcher
	coordinator       *refreshCoordinator
	clock             Clock
	logger            *zap.Logger
	metrics           MetricsRecorder

	stateMutex    sync.Mutex
	authenticated bool
	user          *Claims
	accessToken   string
}

// New validates the configuration and constructs a Client. The client starts
// unauthenticated; call Bootstrap to resume a persisted session.
func New(configuration Config) (*Client, error) {
	if strings.TrimSpace(configuration.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if configuration.Vault == nil {
		return nil, ErrMissingVault
	}
	if configuration.RefreshTimeout < 0 {
		return nil, ErrInvalidRefreshTimeout
	}
	if configuration.RefreshTimeout == 0 {
		configuration.RefreshTimeout = DefaultRefreshTimeout
	}
	if configuration.HTTPClient == nil {
		configuration.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if configuration.Clock == nil {
		configuration.Clock = NewSystemClock()
	}
	if configuration.Logger == nil {
		configuration.Logger = zap.NewNop()
	}
	if configuration.Metrics == nil {
		configuration.Metrics = noopMetrics{}
	}

	client := &Client{
		credentialVault: configuration.Vault,
		clock:           configuration.Clock,
		logger:          configuration.Logger,
		metrics:         configuration.Metrics,
	}
	client.requestDispatcher = newDispatcher(configuration.BaseURL, configuration.HTTPClient, configuration.Logger)
	client.coordinator = &refreshCoordinator{
		credentialVault:   configuration.Vault,
		requestDispatcher: client.requestDispatcher,
		timeout:           configuration.RefreshTimeout,
		logger:            configuration.Logger,
		metrics:           configuration.Metrics,
		onRotated:         client.installRotatedPair,
		onInvalid:         client.invalidateSession,
	}
	return client, nil
}

// Bootstrap resumes a persisted session from the vault. A present refresh
// token is enough to be authenticated; the access token may be absent or
// stale and is recovered through refresh on the first request.
func (client *Client) Bootstrap(ctx context.Context) (Snapshot, error) {
	refreshToken, refreshPresent, readErr := client.credentialVault.Read(ctx, vault.SlotRefreshToken)
	if readErr != nil {
		return Snapshot{}, fmt.Errorf("session.bootstrap.vault_read: %w", readErr)
	}
	if !refreshPresent || refreshToken == "" {
		client.setState(false, nil, "")
		return client.CurrentSnapshot(), nil
	}

	accessToken, _, readErr := client.credentialVault.Read(ctx, vault.SlotAccessToken)
	if readErr != nil {
		return Snapshot{}, fmt.Errorf("session.bootstrap.vault_read: %w", readErr)
	}
	var claims *Claims
	if accessToken != "" {
		decoded, decodeErr := DecodeClaims(accessToken)
		if decodeErr != nil {
			client.logger.Warn("persisted access token carries no decodable claims",
				zap.String("code", "session.bootstrap.claims"),
				zap.Error(decodeErr))
		} else {
			claims = decoded
		}
	}
	client.setState(true, claims, accessToken)
	return client.CurrentSnapshot(), nil
}

// Login exchanges credentials for a token pair and establishes the session.
// The refresh token is persisted before the access token so a partial write
// never strands a session without its recovery credential.
func (client *Client) Login(ctx context.Context, credentials Credentials) (Snapshot, error) {
	path := "/auth/login"
	var requestBody any
	switch {
	case credentials.GoogleIDToken != "":
		path = "/auth/google"
		requestBody = googleLoginRequestBody{GoogleIDToken: credentials.GoogleIDToken}
	case credentials.Identifier != "" && credentials.Password != "":
		requestBody = passwordLoginRequestBody{Identifier: credentials.Identifier, Password: credentials.Password}
	default:
		return Snapshot{}, fmt.Errorf("session.login: %w", ErrMissingCredentials)
	}
	payload, marshalErr := json.Marshal(requestBody)
	if marshalErr != nil {
		return Snapshot{}, fmt.Errorf("session.login.encode: %w", marshalErr)
	}

	response, sendErr := client.requestDispatcher.send(ctx, http.MethodPost, path, payload, "")
	if sendErr != nil {
		client.metrics.Increment(MetricLoginFailure)
		return Snapshot{}, sendErr
	}

	switch response.StatusCode {
	case http.StatusOK:
		return client.finishLogin(ctx, response)
	case http.StatusUnauthorized, http.StatusBadRequest, http.StatusForbidden:
		drainAndClose(response)
		client.metrics.Increment(MetricLoginFailure)
		return Snapshot{}, fmt.Errorf("session.login.status_%d: %w", response.StatusCode, ErrLoginRejected)
	default:
		drainAndClose(response)
		client.metrics.Increment(MetricLoginFailure)
		return Snapshot{}, fmt.Errorf("session.login.status_%d: %w", response.StatusCode, ErrNetworkFailure)
	}
}

func (client *Client) finishLogin(ctx context.Context, response *http.Response) (Snapshot, error) {
	defer func() { _ = response.Body.Close() }()

	var body loginResponseBody
	if decodeErr := json.NewDecoder(response.Body).Decode(&body); decodeErr != nil {
		client.metrics.Increment(MetricLoginFailure)
		return Snapshot{}, fmt.Errorf("session.login.decode: %w", ErrNetworkFailure)
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		client.metrics.Increment(MetricLoginFailure)
		return Snapshot{}, fmt.Errorf("session.login.empty_pair: %w", ErrLoginRejected)
	}

	claims, claimsErr := DecodeClaims(body.AccessToken)
	if claimsErr != nil {
		client.logger.Warn("issued access token carries no decodable claims",
			zap.String("code", "session.login.claims"),
			zap.Error(claimsErr))
		claims = nil
	}

	if writeErr := client.credentialVault.Write(ctx, vault.SlotRefreshToken, body.RefreshToken); writeErr != nil {
		return Snapshot{}, client.failLoginPersist(ctx, writeErr)
	}
	if writeErr := client.credentialVault.Write(ctx, vault.SlotAccessToken, body.AccessToken); writeErr != nil {
		return Snapshot{}, client.failLoginPersist(ctx, writeErr)
	}

	client.setState(true, claims, body.AccessToken)
	client.metrics.Increment(MetricLoginSuccess)
	client.logger.Info("session established",
		zap.String("code", "session.login.success"),
		zap.String("user_id", claims.GetUserID()))
	return client.CurrentSnapshot(), nil
}

func (client *Client) failLoginPersist(ctx context.Context, writeErr error) error {
	client.logger.Error("issued pair could not be persisted",
		zap.String("code", "session.login.vault_write"),
		zap.Error(writeErr))
	client.metrics.Increment(MetricLoginFailure)
	// Fail closed: a half-written pair must not survive.
	client.invalidateSession(ctx, writeErr)
	return fmt.Errorf("session.login.vault_write: %w", writeErr)
}

// Do issues an authenticated request. On a 401 caused by access-token expiry
// it waits for a refresh exchange (joining one already in flight) and replays
// the request exactly once with the rotated token. A 401 on the replay is
// terminal and tears the session down.
func (client *Client) Do(ctx context.Context, method string, path string, body []byte) (*http.Response, error) {
	accessToken, user, authenticated := client.currentState()
	if !authenticated {
		return nil, fmt.Errorf("session.request: %w", ErrNotAuthenticated)
	}
	if accessToken == "" || user.ExpiredAt(client.clock.Now()) {
		// A missing or locally-known-expired access token would only buy a
		// guaranteed 401; mint a fresh one before the first attempt.
		refreshed, refreshErr := client.coordinator.awaitAccessToken(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}
		accessToken = refreshed
	}

	response, sendErr := client.requestDispatcher.send(ctx, method, path, body, accessToken)
	if sendErr != nil {
		return nil, sendErr
	}
	if response.StatusCode != http.StatusUnauthorized {
		return response, nil
	}

	cause := classifyUnauthorized(response)
	if !errors.Is(cause, ErrAuthExpired) {
		return nil, cause
	}
	rotatedToken, refreshErr := client.coordinator.awaitAccessToken(ctx)
	if refreshErr != nil {
		return nil, refreshErr
	}

	replayResponse, replayErr := client.requestDispatcher.send(ctx, method, path, body, rotatedToken)
	if replayErr != nil {
		return nil, replayErr
	}
	if replayResponse.StatusCode == http.StatusUnauthorized {
		replayCause := classifyUnauthorized(replayResponse)
		client.logger.Warn("replay rejected with fresh token",
			zap.String("code", "session.replay.rejected"),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(replayCause))
		client.invalidateSession(ctx, replayCause)
		return nil, fmt.Errorf("session.replay: %w", ErrRefreshRejected)
	}
	return replayResponse, nil
}

// Logout ends the session server-side and clears local credentials. Every
// outcome except a transport failure clears the vault: a server that already
// considers the session dead (401) is treated as success, and a server error
// still fails closed locally so stale tokens cannot outlive the session.
func (client *Client) Logout(ctx context.Context) (LogoutStatus, error) {
	sessionPresent, presenceErr := client.hasSession(ctx)
	if presenceErr != nil {
		return LogoutStatusUnknown, presenceErr
	}
	if !sessionPresent {
		client.metrics.Increment(MetricLogoutAlreadyOut)
		return StatusAlreadyLoggedOut, nil
	}

	response, doErr := client.Do(ctx, http.MethodPost, "/auth/logout", nil)
	if doErr != nil {
		switch {
		case errors.Is(doErr, ErrAuthExpired),
			errors.Is(doErr, ErrRefreshRejected),
			errors.Is(doErr, ErrNotAuthenticated),
			errors.Is(doErr, ErrUnauthorized):
			// The server no longer honors these credentials; there is
			// nothing left to revoke. Clearing locally and reporting
			// success is the only outcome that cannot strand the user.
			client.invalidateSession(ctx, doErr)
			client.metrics.Increment(MetricLogoutAlreadyOut)
			return StatusAlreadyLoggedOut, nil
		case errors.Is(doErr, ErrNetworkFailure):
			// The server may still hold a live session; keep the vault so
			// the caller can retry.
			return LogoutStatusUnknown, doErr
		default:
			return LogoutStatusUnknown, doErr
		}
	}
	defer drainAndClose(response)

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		client.invalidateSession(ctx, nil)
		client.metrics.Increment(MetricLogoutSuccess)
		return StatusLoggedOut, nil
	}

	// Fail closed: the revocation may not have happened server-side, but
	// keeping the pair around guarantees a stale session.
	client.invalidateSession(ctx, ErrLogoutServerFailure)
	client.metrics.Increment(MetricLogoutServerFailure)
	return StatusLoggedOut, fmt.Errorf("session.logout.status_%d: %w", response.StatusCode, ErrLogoutServerFailure)
}

// ForceTeardown clears local session state and vault slots without touching
// the server. Idempotent; the first vault failure is reported but every slot
// is still attempted.
func (client *Client) ForceTeardown(ctx context.Context) error {
	client.setState(false, nil, "")
	client.metrics.Increment(MetricTeardown)
	if clearErr := client.credentialVault.ClearAll(ctx); clearErr != nil {
		client.logger.Error("session teardown could not clear vault",
			zap.String("code", "session.teardown.vault_clear"),
			zap.Error(clearErr))
		return fmt.Errorf("session.teardown: %w", clearErr)
	}
	return nil
}

// CurrentSnapshot returns the session state at this instant.
func (client *Client) CurrentSnapshot() Snapshot {
	client.stateMutex.Lock()
	defer client.stateMutex.Unlock()
	return Snapshot{IsAuthenticated: client.authenticated, User: client.user}
}

// IsAuthenticated reports whether a session is currently established.
func (client *Client) IsAuthenticated() bool {
	client.stateMutex.Lock()
	defer client.stateMutex.Unlock()
	return client.authenticated
}

// hasSession reports whether anything remains to log out: live in-memory
// state or a persisted refresh token. A vault read failure is surfaced, not
// treated as absence; "already logged out" must never be reported while
// secrets may still be persisted.
func (client *Client) hasSession(ctx context.Context) (bool, error) {
	if client.IsAuthenticated() {
		return true, nil
	}
	_, present, readErr := client.credentialVault.Read(ctx, vault.SlotRefreshToken)
	if readErr != nil {
		client.logger.Warn("vault read failed while checking for a session",
			zap.String("code", "session.logout.vault_read"),
			zap.Error(readErr))
		return false, fmt.Errorf("session.logout.vault_read: %w", readErr)
	}
	return present, nil
}

func (client *Client) currentState() (string, *Claims, bool) {
	client.stateMutex.Lock()
	defer client.stateMutex.Unlock()
	return client.accessToken, client.user, client.authenticated
}

func (client *Client) setState(authenticated bool, user *Claims, accessToken string) {
	client.stateMutex.Lock()
	defer client.stateMutex.Unlock()
	client.authenticated = authenticated
	client.user = user
	client.accessToken = accessToken
}

// installRotatedPair publishes the rotated access token and its claims. The
// user identity is only replaced when the rotated token carried decodable
// claims; otherwise the previous identity stands.
func (client *Client) installRotatedPair(pair TokenPair, claims *Claims) {
	client.stateMutex.Lock()
	defer client.stateMutex.Unlock()
	client.authenticated = true
	client.accessToken = pair.AccessToken
	if claims != nil {
		client.user = claims
	}
}

// invalidateSession is the terminal transition: in-memory state is dropped
// and the vault is cleared best-effort. Used for refresh rejection, replay
// rejection, and fail-closed logout.
func (client *Client) invalidateSession(ctx context.Context, cause error) {
	client.setState(false, nil, "")
	client.metrics.Increment(MetricTeardown)
	if cause != nil {
		client.logger.Info("session invalidated",
			zap.String("code", "session.invalidated"),
			zap.Error(cause))
	}
	if clearErr := client.credentialVault.ClearAll(ctx); clearErr != nil {
		client.logger.Error("session invalidation could not clear vault",
			zap.String("code", "session.invalidate.vault_clear"),
			zap.Error(clearErr))
	}
}
