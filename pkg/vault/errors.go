package vault

import "errors"

var (
	// ErrUnknownSlot indicates a slot name outside the managed set.
	ErrUnknownSlot = errors.New("vault.unknown_slot")
	// ErrEmptyServiceName indicates a vault was constructed without a service identifier.
	ErrEmptyServiceName = errors.New("vault.empty_service_name")
	// ErrEmptySecret indicates an attempt to write an empty secret; use Clear instead.
	ErrEmptySecret = errors.New("vault.empty_secret")
	// ErrUnsupportedBackend indicates the vault URL scheme has no registered backend.
	ErrUnsupportedBackend = errors.New("vault.unsupported_backend")
	// ErrSealedPayloadCorrupt indicates a sealed secret could not be decrypted.
	ErrSealedPayloadCorrupt = errors.New("vault.sealed_payload_corrupt")
)
