package vault

import (
	"context"
	"errors"
	"testing"
)

func TestOpenMemoryBackend(t *testing.T) {
	openedVault, err := Open(context.Background(), "memory://", "storeapp")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, ok := openedVault.(*MemoryVault); !ok {
		t.Fatalf("expected memory backend, got %T", openedVault)
	}
}

func TestOpenSQLiteBackend(t *testing.T) {
	openedVault, err := Open(context.Background(), "sqlite://file::memory:?cache=shared", "storeapp-open")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	databaseVault, ok := openedVault.(*DatabaseVault)
	if !ok {
		t.Fatalf("expected database backend, got %T", openedVault)
	}
	if databaseVault.Driver() != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", databaseVault.Driver())
	}
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "keychain://default", "storeapp")
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}
