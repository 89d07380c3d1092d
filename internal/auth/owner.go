package auth

import "crypto/subtle"

// OwnerKeyHeader carries the owner key on administrative requests.
const OwnerKeyHeader = "X-Owner-Key"

// OwnerGate checks the shared owner key that protects administrative
// endpoints. An empty configured key disables the surface: every check
// fails, including a presented empty key.
type OwnerGate struct {
	key []byte
}

// NewOwnerGate creates an owner gate for the configured key.
func NewOwnerGate(key string) *OwnerGate {
	return &OwnerGate{key: []byte(key)}
}

// Enabled reports whether an owner key is configured.
func (g *OwnerGate) Enabled() bool {
	return len(g.key) > 0
}

// Check verifies the presented key in constant time.
func (g *OwnerGate) Check(presented string) error {
	if !g.Enabled() {
		return ErrOwnerSurfaceDisabled
	}
	if subtle.ConstantTimeCompare(g.key, []byte(presented)) != 1 {
		return ErrOwnerKeyInvalid
	}
	return nil
}
