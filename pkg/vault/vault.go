// Package vault provides secure at-rest storage for the platform's
// session credentials. A vault keeps exactly two named secret slots per
// service identifier: the access token and the refresh token. Reads report
// absence explicitly, writes reset the slot before setting the new value,
// and clears are idempotent.
package vault

import "context"

// Slot names one of the secret slots a service keeps in the vault.
type Slot string

const (
	// SlotAccessToken holds the short-lived bearer credential.
	SlotAccessToken Slot = "accessToken"
	// SlotRefreshToken holds the rotating long-lived credential.
	SlotRefreshToken Slot = "refreshToken"
)

// Slots lists every slot a vault manages, in ClearAll order.
var Slots = [...]Slot{SlotAccessToken, SlotRefreshToken}

// Vault stores one secret string per slot under a service identifier.
//
// Write must be reset-then-set: when the reset succeeds and the set fails
// the slot is left empty, never holding the stale secret. Clear of an
// already-empty slot is not an error. ClearAll is best-effort: a failure on
// one slot is reported, but the remaining slot is still attempted.
type Vault interface {
	Read(ctx context.Context, slot Slot) (secret string, present bool, err error)
	Write(ctx context.Context, slot Slot, secret string) error
	Clear(ctx context.Context, slot Slot) error
	ClearAll(ctx context.Context) error
}

func validSlot(slot Slot) bool {
	for _, known := range Slots {
		if slot == known {
			return true
		}
	}
	return false
}
