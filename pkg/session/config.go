package session

import (
	"net/http"
	"time"

	"github.com/hmabdullah7770/sessionkit/pkg/vault"
	"go.uber.org/zap"
)

// DefaultRefreshTimeout bounds one refresh exchange; a hung exchange must
// not leave waiters parked forever.
const DefaultRefreshTimeout = 15 * time.Second

// DefaultHTTPTimeout is applied when no HTTP client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

// Config configures the session Client. BaseURL and Vault are required;
// everything else has a working default.
type Config struct {
	// BaseURL is the platform API root, e.g. https://api.example.com.
	BaseURL string
	// Vault stores the token pair at rest.
	Vault vault.Vault
	// HTTPClient performs all network calls. Defaults to a client with
	// DefaultHTTPTimeout.
	HTTPClient *http.Client
	// Clock drives expiry introspection. Defaults to the system clock.
	Clock Clock
	// Logger receives structured session events. Defaults to a nop logger.
	Logger *zap.Logger
	// Metrics counts session events. Defaults to a nop recorder.
	Metrics MetricsRecorder
	// RefreshTimeout bounds one refresh exchange. Defaults to
	// DefaultRefreshTimeout; must not be negative.
	RefreshTimeout time.Duration
}
