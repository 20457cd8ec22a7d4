package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxVault persists credential slots in PostgreSQL through a pgx pool,
// bypassing GORM. Selected by the postgres+pgx:// URL scheme.
type PgxVault struct {
	pool    *pgxpool.Pool
	service string
}

// NewPgxVault builds a pooled connection, ensures the schema, and returns the vault.
func NewPgxVault(ctx context.Context, databaseURL string, service string) (*PgxVault, error) {
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("vault.pgx.new: %w", ErrEmptyServiceName)
	}
	pool, poolErr := buildPool(ctx, strings.Replace(databaseURL, "postgres+pgx://", "postgres://", 1))
	if poolErr != nil {
		return nil, fmt.Errorf("vault.pgx.pool: %w", poolErr)
	}
	if schemaErr := ensureSchema(ctx, pool); schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("vault.pgx.schema: %w", schemaErr)
	}
	return &PgxVault{pool: pool, service: service}, nil
}

// Close releases the underlying pool.
func (pgxVault *PgxVault) Close() {
	pgxVault.pool.Close()
}

// Read returns the slot's secret, reporting absence explicitly.
func (pgxVault *PgxVault) Read(ctx context.Context, slot Slot) (string, bool, error) {
	if !validSlot(slot) {
		return "", false, fmt.Errorf("vault.pgx.read: %w", ErrUnknownSlot)
	}
	var secret string
	row := pgxVault.pool.QueryRow(ctx, `
SELECT secret FROM credential_slots WHERE service = $1 AND slot = $2
`, pgxVault.service, string(slot))
	if scanErr := row.Scan(&secret); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vault.pgx.read: %w", scanErr)
	}
	return secret, true, nil
}

// Write resets the slot and stores the new secret. Separate statements keep
// the slot empty, not stale, when the insert fails after the delete.
func (pgxVault *PgxVault) Write(ctx context.Context, slot Slot, secret string) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.pgx.write: %w", ErrUnknownSlot)
	}
	if secret == "" {
		return fmt.Errorf("vault.pgx.write: %w", ErrEmptySecret)
	}
	if _, deleteErr := pgxVault.pool.Exec(ctx, `
DELETE FROM credential_slots WHERE service = $1 AND slot = $2
`, pgxVault.service, string(slot)); deleteErr != nil {
		return fmt.Errorf("vault.pgx.write: %w", deleteErr)
	}
	if _, insertErr := pgxVault.pool.Exec(ctx, `
INSERT INTO credential_slots (service, slot, secret, updated_unix) VALUES ($1, $2, $3, $4)
`, pgxVault.service, string(slot), secret, time.Now().UTC().Unix()); insertErr != nil {
		return fmt.Errorf("vault.pgx.write: %w", insertErr)
	}
	return nil
}

// Clear removes the slot's secret; clearing an empty slot is not an error.
func (pgxVault *PgxVault) Clear(ctx context.Context, slot Slot) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.pgx.clear: %w", ErrUnknownSlot)
	}
	if _, err := pgxVault.pool.Exec(ctx, `
DELETE FROM credential_slots WHERE service = $1 AND slot = $2
`, pgxVault.service, string(slot)); err != nil {
		return fmt.Errorf("vault.pgx.clear: %w", err)
	}
	return nil
}

// ClearAll removes every slot, attempting each even after a failure.
func (pgxVault *PgxVault) ClearAll(ctx context.Context) error {
	var firstErr error
	for _, slot := range Slots {
		if err := pgxVault.Clear(ctx, slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	config.MinConns = 1
	config.MaxConns = 8
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, config)
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credential_slots (
    service TEXT NOT NULL,
    slot TEXT NOT NULL,
    secret TEXT NOT NULL,
    updated_unix BIGINT NOT NULL,
    PRIMARY KEY (service, slot)
);
`)
	return err
}
