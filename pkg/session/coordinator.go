package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hmabdullah7770/sessionkit/pkg/vault"
	"go.uber.org/zap"
)

type refreshRequestBody struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponseBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refreshExchange is the shared outcome of one in-flight refresh. Waiters
// block on done and then read accessToken/err; both are written before done
// is closed.
type refreshExchange struct {
	done        chan struct{}
	accessToken string
	err         error
}

// refreshCoordinator enforces the single-flight refresh discipline: at most
// one exchange is in flight, every request that hits an expired access token
// while it runs attaches to the same outcome, and waiters are released only
// after the rotated pair has settled in the vault. The inFlight pointer is
// the state machine: nil is Idle, non-nil is Refreshing; SessionInvalid is
// reached through the onInvalid callback.
type refreshCoordinator struct {
	mutex    sync.Mutex
	inFlight *refreshExchange

	credentialVault   vault.Vault
	requestDispatcher *dispatcher
	timeout           time.Duration
	logger            *zap.Logger
	metrics           MetricsRecorder

	// onRotated installs the rotated pair and its claims into session state.
	onRotated func(pair TokenPair, claims *Claims)
	// onInvalid tears the session down after a terminal refresh failure.
	onInvalid func(ctx context.Context, cause error)
}

// awaitAccessToken returns an access token minted by a refresh exchange:
// either the one already in flight, or a new one started by this caller.
// The returned token is the exchange's own product; it is never re-read
// from the vault, which could race a later rotation.
func (coordinator *refreshCoordinator) awaitAccessToken(ctx context.Context) (string, error) {
	coordinator.mutex.Lock()
	if exchange := coordinator.inFlight; exchange != nil {
		coordinator.mutex.Unlock()
		coordinator.metrics.Increment(MetricRefreshJoined)
		select {
		case <-exchange.done:
			return exchange.accessToken, exchange.err
		case <-ctx.Done():
			return "", fmt.Errorf("session.refresh.wait: %w", ctx.Err())
		}
	}
	exchange := &refreshExchange{done: make(chan struct{})}
	coordinator.inFlight = exchange
	coordinator.mutex.Unlock()

	exchange.accessToken, exchange.err = coordinator.runExchange(ctx)

	coordinator.mutex.Lock()
	coordinator.inFlight = nil
	coordinator.mutex.Unlock()
	close(exchange.done)

	return exchange.accessToken, exchange.err
}

// runExchange performs one refresh exchange. The exchange is detached from
// the leader's cancellation so sibling waiters never lose a refresh to one
// caller's context, and bounded by the configured timeout so waiters are
// never blocked indefinitely.
func (coordinator *refreshCoordinator) runExchange(ctx context.Context) (string, error) {
	exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), coordinator.timeout)
	defer cancel()

	refreshToken, present, readErr := coordinator.credentialVault.Read(exchangeCtx, vault.SlotRefreshToken)
	if readErr != nil {
		coordinator.metrics.Increment(MetricRefreshRejected)
		coordinator.onInvalid(exchangeCtx, readErr)
		return "", fmt.Errorf("session.refresh.vault_read: %w: %w", ErrRefreshRejected, readErr)
	}
	if !present {
		coordinator.onInvalid(exchangeCtx, ErrNotAuthenticated)
		return "", fmt.Errorf("session.refresh.no_refresh_token: %w", ErrNotAuthenticated)
	}

	payload, marshalErr := json.Marshal(refreshRequestBody{RefreshToken: refreshToken})
	if marshalErr != nil {
		return "", fmt.Errorf("session.refresh.encode: %w", marshalErr)
	}
	response, sendErr := coordinator.requestDispatcher.send(exchangeCtx, http.MethodPost, "/auth/refresh", payload, "")
	if sendErr != nil {
		if errors.Is(sendErr, context.DeadlineExceeded) {
			// A hung exchange is terminal: waiters must not stay parked and the
			// refresh token may already have been consumed server-side.
			coordinator.metrics.Increment(MetricRefreshRejected)
			coordinator.onInvalid(exchangeCtx, sendErr)
			return "", fmt.Errorf("session.refresh.timeout: %w", ErrRefreshRejected)
		}
		coordinator.metrics.Increment(MetricRefreshNetworkFailure)
		return "", sendErr
	}

	switch response.StatusCode {
	case http.StatusOK:
		return coordinator.finishExchange(exchangeCtx, response)
	case http.StatusUnauthorized:
		cause := classifyUnauthorized(response)
		coordinator.metrics.Increment(MetricRefreshRejected)
		coordinator.logger.Warn("refresh token rejected",
			zap.String("code", "session.refresh.rejected"),
			zap.Error(cause))
		coordinator.onInvalid(exchangeCtx, cause)
		return "", fmt.Errorf("session.refresh: %w", ErrRefreshRejected)
	default:
		drainAndClose(response)
		coordinator.metrics.Increment(MetricRefreshNetworkFailure)
		return "", fmt.Errorf("session.refresh.status_%d: %w", response.StatusCode, ErrNetworkFailure)
	}
}

// finishExchange persists the rotated pair and releases it to waiters. The
// pair written is exactly the pair this exchange returned; the pre-exchange
// values are never written back.
func (coordinator *refreshCoordinator) finishExchange(ctx context.Context, response *http.Response) (string, error) {
	defer func() { _ = response.Body.Close() }()

	var body refreshResponseBody
	if decodeErr := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&body); decodeErr != nil {
		coordinator.metrics.Increment(MetricRefreshNetworkFailure)
		return "", fmt.Errorf("session.refresh.decode: %w", ErrNetworkFailure)
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		coordinator.metrics.Increment(MetricRefreshRejected)
		coordinator.onInvalid(ctx, ErrRefreshRejected)
		return "", fmt.Errorf("session.refresh.empty_pair: %w", ErrRefreshRejected)
	}

	claims, claimsErr := DecodeClaims(body.AccessToken)
	if claimsErr != nil {
		coordinator.logger.Warn("rotated access token carries no decodable claims",
			zap.String("code", "session.refresh.claims"),
			zap.Error(claimsErr))
		claims = nil
	}

	// Refresh token first: it is the only credential that can recover the
	// session after a restart. A failed write leaves the vault cleared, not
	// holding a consumed token.
	if writeErr := coordinator.credentialVault.Write(ctx, vault.SlotRefreshToken, body.RefreshToken); writeErr != nil {
		return "", coordinator.failPersist(ctx, writeErr)
	}
	if writeErr := coordinator.credentialVault.Write(ctx, vault.SlotAccessToken, body.AccessToken); writeErr != nil {
		return "", coordinator.failPersist(ctx, writeErr)
	}

	coordinator.onRotated(TokenPair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, claims)
	coordinator.metrics.Increment(MetricRefreshSuccess)
	return body.AccessToken, nil
}

func (coordinator *refreshCoordinator) failPersist(ctx context.Context, writeErr error) error {
	coordinator.logger.Error("rotated pair could not be persisted",
		zap.String("code", "session.refresh.vault_write"),
		zap.Error(writeErr))
	coordinator.metrics.Increment(MetricRefreshRejected)
	coordinator.onInvalid(ctx, writeErr)
	return fmt.Errorf("session.refresh.vault_write: %w: %w", ErrRefreshRejected, writeErr)
}
