package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryVault is an in-memory vault intended for tests and dev.
type MemoryVault struct {
	mutex   sync.Mutex
	service string
	entries map[Slot]string
}

// NewMemoryVault creates an empty in-memory vault for the given service.
func NewMemoryVault(service string) (*MemoryVault, error) {
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("vault.memory.new: %w", ErrEmptyServiceName)
	}
	return &MemoryVault{
		service: service,
		entries: make(map[Slot]string),
	}, nil
}

// Read returns the slot's secret, reporting absence explicitly.
func (memoryVault *MemoryVault) Read(ctx context.Context, slot Slot) (string, bool, error) {
	if !validSlot(slot) {
		return "", false, fmt.Errorf("vault.memory.read: %w", ErrUnknownSlot)
	}
	memoryVault.mutex.Lock()
	defer memoryVault.mutex.Unlock()
	secret, present := memoryVault.entries[slot]
	return secret, present, nil
}

// Write resets the slot and stores the new secret.
func (memoryVault *MemoryVault) Write(ctx context.Context, slot Slot, secret string) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.memory.write: %w", ErrUnknownSlot)
	}
	if secret == "" {
		return fmt.Errorf("vault.memory.write: %w", ErrEmptySecret)
	}
	memoryVault.mutex.Lock()
	defer memoryVault.mutex.Unlock()
	delete(memoryVault.entries, slot)
	memoryVault.entries[slot] = secret
	return nil
}

// Clear removes the slot's secret; clearing an empty slot is not an error.
func (memoryVault *MemoryVault) Clear(ctx context.Context, slot Slot) error {
	if !validSlot(slot) {
		return fmt.Errorf("vault.memory.clear: %w", ErrUnknownSlot)
	}
	memoryVault.mutex.Lock()
	defer memoryVault.mutex.Unlock()
	delete(memoryVault.entries, slot)
	return nil
}

// ClearAll removes every slot.
func (memoryVault *MemoryVault) ClearAll(ctx context.Context) error {
	memoryVault.mutex.Lock()
	defer memoryVault.mutex.Unlock()
	for _, slot := range Slots {
		delete(memoryVault.entries, slot)
	}
	return nil
}
