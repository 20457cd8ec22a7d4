package authserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
)

const refreshOpaqueByteLength = 32

// RefreshTokenStore manages rotating opaque refresh tokens. Issue links the
// new token to the one it replaces; Validate rejects revoked and expired
// tokens so a replayed pre-rotation token always fails.
type RefreshTokenStore interface {
	Issue(ctx context.Context, userID string, expiresUnix int64, previousTokenID string) (tokenID string, tokenOpaque string, err error)
	Validate(ctx context.Context, tokenOpaque string) (userID string, tokenID string, expiresUnix int64, err error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type refreshRecord struct {
	TokenID         string
	UserID          string
	Hash            string
	ExpiresUnix     int64
	RevokedAtUnix   int64
	PreviousTokenID string
	IssuedAtUnix    int64
}

// MemoryRefreshTokenStore is an in-memory refresh token store for tests and
// single-process deployments.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	clock  session.Clock
	byID   map[string]*refreshRecord
	byHash map[string]string
}

// NewMemoryRefreshTokenStore creates an empty store driven by the given clock.
func NewMemoryRefreshTokenStore(clock session.Clock) *MemoryRefreshTokenStore {
	if clock == nil {
		clock = session.NewSystemClock()
	}
	return &MemoryRefreshTokenStore{
		clock:  clock,
		byID:   make(map[string]*refreshRecord),
		byHash: make(map[string]string),
	}
}

// Issue creates a new opaque token, optionally linked to the token it rotates out.
func (store *MemoryRefreshTokenStore) Issue(ctx context.Context, userID string, expiresUnix int64, previousTokenID string) (string, string, error) {
	opaque, hashValue, generateErr := generateRefreshOpaque()
	if generateErr != nil {
		return "", "", generateErr
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	record := &refreshRecord{
		TokenID:         uuid.NewString(),
		UserID:          userID,
		Hash:            hashValue,
		ExpiresUnix:     expiresUnix,
		PreviousTokenID: previousTokenID,
		IssuedAtUnix:    store.clock.Now().Unix(),
	}
	store.byID[record.TokenID] = record
	store.byHash[hashValue] = record.TokenID
	return record.TokenID, opaque, nil
}

// Validate resolves an opaque token to its user, rejecting revoked and
// expired tokens.
func (store *MemoryRefreshTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, int64, error) {
	if tokenOpaque == "" {
		return "", "", 0, ErrRefreshTokenEmptyOpaque
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	tokenID, found := store.byHash[hashOpaque(tokenOpaque)]
	if !found {
		return "", "", 0, ErrRefreshTokenNotFound
	}
	record := store.byID[tokenID]
	if record == nil {
		return "", "", 0, ErrRefreshTokenNotFound
	}
	if record.RevokedAtUnix != 0 {
		return "", "", 0, ErrRefreshTokenRevoked
	}
	if time.Unix(record.ExpiresUnix, 0).Before(store.clock.Now()) {
		return "", "", 0, ErrRefreshTokenExpired
	}
	return record.UserID, record.TokenID, record.ExpiresUnix, nil
}

// Revoke marks a token as revoked. Revoking twice is a no-op.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record := store.byID[tokenID]
	if record == nil {
		return ErrRefreshTokenNotFound
	}
	if record.RevokedAtUnix != 0 {
		return nil
	}
	record.RevokedAtUnix = store.clock.Now().Unix()
	return nil
}

// RevokeAllForUser revokes every live token for a user; logout uses this so
// no rotation chain survives the session.
func (store *MemoryRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	nowUnix := store.clock.Now().Unix()
	for _, record := range store.byID {
		if record.UserID == userID && record.RevokedAtUnix == 0 {
			record.RevokedAtUnix = nowUnix
		}
	}
	return nil
}

func generateRefreshOpaque() (string, string, error) {
	randomBytes := make([]byte, refreshOpaqueByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("authserver.refresh.random: %w", err)
	}
	opaque := base64.RawURLEncoding.EncodeToString(randomBytes)
	return opaque, hashOpaque(opaque), nil
}

func hashOpaque(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
