package vault

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// SealedVault wraps another vault and encrypts every secret at rest with an
// age X25519 identity. The inner vault only ever sees ciphertext.
type SealedVault struct {
	inner    Vault
	identity *age.X25519Identity
}

// NewSealedVault parses the age identity string (AGE-SECRET-KEY-1...) and
// wraps the inner vault.
func NewSealedVault(inner Vault, identityString string) (*SealedVault, error) {
	if inner == nil {
		return nil, fmt.Errorf("vault.sealed.new: inner vault must be provided")
	}
	identity, parseErr := age.ParseX25519Identity(strings.TrimSpace(identityString))
	if parseErr != nil {
		return nil, fmt.Errorf("vault.sealed.parse_identity: %w", parseErr)
	}
	return &SealedVault{inner: inner, identity: identity}, nil
}

// Read fetches and unseals the slot's secret.
func (sealedVault *SealedVault) Read(ctx context.Context, slot Slot) (string, bool, error) {
	ciphertext, present, readErr := sealedVault.inner.Read(ctx, slot)
	if readErr != nil || !present {
		return "", present, readErr
	}
	secret, unsealErr := sealedVault.unseal(ciphertext)
	if unsealErr != nil {
		return "", false, fmt.Errorf("vault.sealed.read: %w", unsealErr)
	}
	return secret, true, nil
}

// Write seals the secret and stores the ciphertext in the inner vault.
func (sealedVault *SealedVault) Write(ctx context.Context, slot Slot, secret string) error {
	if secret == "" {
		return fmt.Errorf("vault.sealed.write: %w", ErrEmptySecret)
	}
	ciphertext, sealErr := sealedVault.seal(secret)
	if sealErr != nil {
		return fmt.Errorf("vault.sealed.write: %w", sealErr)
	}
	return sealedVault.inner.Write(ctx, slot, ciphertext)
}

// Clear delegates to the inner vault.
func (sealedVault *SealedVault) Clear(ctx context.Context, slot Slot) error {
	return sealedVault.inner.Clear(ctx, slot)
}

// ClearAll delegates to the inner vault.
func (sealedVault *SealedVault) ClearAll(ctx context.Context) error {
	return sealedVault.inner.ClearAll(ctx)
}

func (sealedVault *SealedVault) seal(secret string) (string, error) {
	var buffer bytes.Buffer
	writer, encryptErr := age.Encrypt(&buffer, sealedVault.identity.Recipient())
	if encryptErr != nil {
		return "", encryptErr
	}
	if _, writeErr := io.WriteString(writer, secret); writeErr != nil {
		return "", writeErr
	}
	if closeErr := writer.Close(); closeErr != nil {
		return "", closeErr
	}
	return base64.RawURLEncoding.EncodeToString(buffer.Bytes()), nil
}

func (sealedVault *SealedVault) unseal(ciphertext string) (string, error) {
	raw, decodeErr := base64.RawURLEncoding.DecodeString(ciphertext)
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedPayloadCorrupt, decodeErr)
	}
	reader, decryptErr := age.Decrypt(bytes.NewReader(raw), sealedVault.identity)
	if decryptErr != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedPayloadCorrupt, decryptErr)
	}
	plaintext, readErr := io.ReadAll(reader)
	if readErr != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedPayloadCorrupt, readErr)
	}
	return string(plaintext), nil
}
