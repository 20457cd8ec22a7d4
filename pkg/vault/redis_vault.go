package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisVault stores credential slots in Redis under service-scoped keys.
// Intended for server-to-server deployments where the session client runs
// alongside a Redis instance rather than on a device.
type RedisVault struct {
	client  *redis.Client
	service string
}

// NewRedisVault wraps an existing Redis client for the given service.
func NewRedisVault(client *redis.Client, service string) (*RedisVault, error) {
	if client == nil {
		return nil, errors.New("vault.redis.new: nil client")
	}
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("vault.redis.new: %w", ErrEmptyServiceName)
	}
	return &RedisVault{client: client, service: service}, nil
}

func (redisVault *RedisVault) key(slot Slot) string {
	return redisVault.service + ":vault:" + string(slot)
}

// Read returns the slot's secret, reporting absence explicitly.
func (redisVault *RedisVault) Read(ctx context.Context, slot Slot) (string, bool, error) {
	if !validSlot(slot) {
		return "", false, fmt.Errorf("vault.redis.read: %w", ErrUnknownSlot)
	}
	secret, err := redisVault.client.Get(ctx, redisVault.key(slot)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vault.redis.read: %w", err)
	}
	return secret, true, nil
}

// Write resets the slot and stores the new secret.
func (redisVault *RedisVault) Write(ctx context.Context, slot Slot, secret string) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.redis.write: %w", ErrUnknownSlot)
	}
	if secret == "" {
		return fmt.Errorf("vault.redis.write: %w", ErrEmptySecret)
	}
	if err := redisVault.client.Del(ctx, redisVault.key(slot)).Err(); err != nil {
		return fmt.Errorf("vault.redis.write: %w", err)
	}
	if err := redisVault.client.Set(ctx, redisVault.key(slot), secret, 0).Err(); err != nil {
		return fmt.Errorf("vault.redis.write: %w", err)
	}
	return nil
}

// Clear removes the slot's secret; clearing an empty slot is not an error.
func (redisVault *RedisVault) Clear(ctx context.Context, slot Slot) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.redis.clear: %w", ErrUnknownSlot)
	}
	if err := redisVault.client.Del(ctx, redisVault.key(slot)).Err(); err != nil {
		return fmt.Errorf("vault.redis.clear: %w", err)
	}
	return nil
}

// ClearAll removes every slot, attempting each even after a failure.
func (redisVault *RedisVault) ClearAll(ctx context.Context) error {
	var firstErr error
	for _, slot := range Slots {
		if err := redisVault.Clear(ctx, slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
