package auth

import "errors"

// Authentication errors.
var (
	// ErrNoSession indicates no session token was presented.
	ErrNoSession = errors.New("no session token")

	// ErrSessionInvalid indicates the session token failed verification:
	// bad signature, malformed, or expired. Verification is fail-closed;
	// every failure mode collapses into this error.
	ErrSessionInvalid = errors.New("invalid session token")

	// ErrOwnerKeyInvalid indicates the owner key header is missing or wrong.
	ErrOwnerKeyInvalid = errors.New("invalid owner key")

	// ErrOwnerSurfaceDisabled indicates no owner key is configured, so the
	// administrative surface rejects everything.
	ErrOwnerSurfaceDisabled = errors.New("owner surface disabled")
)
