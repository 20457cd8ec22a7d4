package vault

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Open resolves a vault backend from a URL scheme:
//
//	memory://                      in-memory (dev and tests)
//	sqlite://path/to/file.db       GORM with the sqlite driver
//	postgres://user:pw@host/db     GORM with the postgres driver
//	postgres+pgx://user:pw@host/db raw pgx pool
//	redis://host:6379/0            Redis
func Open(ctx context.Context, vaultURL string, service string) (Vault, error) {
	parsed, parseErr := url.Parse(vaultURL)
	if parseErr != nil {
		return nil, fmt.Errorf("vault.open.parse_url: %w", parseErr)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "memory":
		return NewMemoryVault(service)
	case "sqlite", "sqlite3", "postgres", "postgresql":
		return NewDatabaseVault(ctx, vaultURL, service)
	case "postgres+pgx":
		return NewPgxVault(ctx, vaultURL, service)
	case "redis", "rediss":
		options, optionsErr := redis.ParseURL(vaultURL)
		if optionsErr != nil {
			return nil, fmt.Errorf("vault.open.redis: %w", optionsErr)
		}
		return NewRedisVault(redis.NewClient(options), service)
	default:
		return nil, fmt.Errorf("vault.open.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedBackend)
	}
}
