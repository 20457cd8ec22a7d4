package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Error codes the platform API uses in 401 bodies.
const (
	errorCodeTokenExpired   = "token_expired"
	errorCodeRefreshInvalid = "refresh_invalid"
)

const maxErrorBodyBytes = 4 << 10

type apiErrorBody struct {
	Error string `json:"error"`
}

// dispatcher issues requests against the platform API. It builds a fresh
// *http.Request per attempt so a request can be replayed safely after a
// token refresh.
type dispatcher struct {
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	newRequestID func() string
}

func newDispatcher(baseURL string, httpClient *http.Client, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		logger:       logger,
		newRequestID: uuid.NewString,
	}
}

// send issues one attempt. An empty accessToken sends an unauthenticated
// request (login and refresh exchanges). Transport errors are wrapped as
// ErrNetworkFailure with the cause preserved in the chain.
func (requestDispatcher *dispatcher) send(ctx context.Context, method string, path string, body []byte, accessToken string) (*http.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	request, buildErr := http.NewRequestWithContext(ctx, method, requestDispatcher.baseURL+path, reader)
	if buildErr != nil {
		return nil, fmt.Errorf("session.dispatch.build: %w", buildErr)
	}
	if len(body) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}
	requestID := requestDispatcher.newRequestID()
	request.Header.Set("X-Request-ID", requestID)

	response, sendErr := requestDispatcher.httpClient.Do(request)
	if sendErr != nil {
		requestDispatcher.logger.Warn("request transport failure",
			zap.String("code", "session.dispatch.transport"),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(sendErr))
		return nil, fmt.Errorf("session.dispatch: %w: %w", ErrNetworkFailure, sendErr)
	}
	return response, nil
}

// classifyUnauthorized consumes a 401 response body and maps its error code
// onto the session error taxonomy. The response body is drained and closed.
func classifyUnauthorized(response *http.Response) error {
	defer func() { _ = response.Body.Close() }()
	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("session.unauthorized.read_body: %w", ErrUnauthorized)
	}
	var body apiErrorBody
	if decodeErr := json.Unmarshal(raw, &body); decodeErr != nil || body.Error == "" {
		return fmt.Errorf("session.unauthorized.opaque: %w", ErrUnauthorized)
	}
	switch body.Error {
	case errorCodeTokenExpired:
		return fmt.Errorf("session.unauthorized.%s: %w", body.Error, ErrAuthExpired)
	case errorCodeRefreshInvalid:
		return fmt.Errorf("session.unauthorized.%s: %w", body.Error, ErrRefreshRejected)
	default:
		return fmt.Errorf("session.unauthorized.%s: %w", body.Error, ErrUnauthorized)
	}
}

func drainAndClose(response *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxErrorBodyBytes))
	_ = response.Body.Close()
}
