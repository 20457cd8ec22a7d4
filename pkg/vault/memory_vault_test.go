package vault

import (
	"context"
	"errors"
	"testing"
)

func TestNewMemoryVaultRequiresService(t *testing.T) {
	_, err := NewMemoryVault("  ")
	if err == nil {
		t.Fatalf("expected error for empty service name")
	}
	if !errors.Is(err, ErrEmptyServiceName) {
		t.Fatalf("expected ErrEmptyServiceName, got %v", err)
	}
}

func TestMemoryVaultLifecycle(t *testing.T) {
	memoryVault, err := NewMemoryVault("storeapp")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	secret, present, readErr := memoryVault.Read(context.Background(), SlotAccessToken)
	if readErr != nil {
		t.Fatalf("read error: %v", readErr)
	}
	if present || secret != "" {
		t.Fatalf("expected absent slot before first write")
	}

	if writeErr := memoryVault.Write(context.Background(), SlotAccessToken, "token-one"); writeErr != nil {
		t.Fatalf("write error: %v", writeErr)
	}
	if writeErr := memoryVault.Write(context.Background(), SlotAccessToken, "token-two"); writeErr != nil {
		t.Fatalf("overwrite error: %v", writeErr)
	}

	secret, present, readErr = memoryVault.Read(context.Background(), SlotAccessToken)
	if readErr != nil || !present {
		t.Fatalf("expected present slot, got present=%v err=%v", present, readErr)
	}
	if secret != "token-two" {
		t.Fatalf("expected the rotated value only, got %q", secret)
	}

	if clearErr := memoryVault.Clear(context.Background(), SlotAccessToken); clearErr != nil {
		t.Fatalf("clear error: %v", clearErr)
	}
	if clearErr := memoryVault.Clear(context.Background(), SlotAccessToken); clearErr != nil {
		t.Fatalf("clearing an empty slot must not fail: %v", clearErr)
	}
}

func TestMemoryVaultRejectsUnknownSlot(t *testing.T) {
	memoryVault, err := NewMemoryVault("storeapp")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	if _, _, readErr := memoryVault.Read(context.Background(), Slot("sessionCookie")); !errors.Is(readErr, ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", readErr)
	}
	if writeErr := memoryVault.Write(context.Background(), Slot("sessionCookie"), "x"); !errors.Is(writeErr, ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", writeErr)
	}
}

func TestMemoryVaultRejectsEmptySecret(t *testing.T) {
	memoryVault, err := NewMemoryVault("storeapp")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	if writeErr := memoryVault.Write(context.Background(), SlotRefreshToken, ""); !errors.Is(writeErr, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", writeErr)
	}
}

func TestMemoryVaultClearAll(t *testing.T) {
	memoryVault, err := NewMemoryVault("storeapp")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	if writeErr := memoryVault.Write(context.Background(), SlotAccessToken, "access"); writeErr != nil {
		t.Fatalf("write error: %v", writeErr)
	}
	if writeErr := memoryVault.Write(context.Background(), SlotRefreshToken, "refresh"); writeErr != nil {
		t.Fatalf("write error: %v", writeErr)
	}
	if clearErr := memoryVault.ClearAll(context.Background()); clearErr != nil {
		t.Fatalf("clear all error: %v", clearErr)
	}
	for _, slot := range Slots {
		if _, present, _ := memoryVault.Read(context.Background(), slot); present {
			t.Fatalf("expected slot %s empty after ClearAll", slot)
		}
	}
}
