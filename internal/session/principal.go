package session

import (
	"time"

	"github.com/classward/sessiond/internal/roles"
)

// Principal is the authenticated identity as known to the rest of the
// system. It is created on successful credential validation and mutated only
// inside the orchestrator's transition handler.
type Principal struct {
	ID                  string
	Email               string
	EmailVerified       bool
	CredentialExpiresAt time.Time
	Roles               roles.Set
}

// ActivityEvent is one raw user-interaction signal.
type ActivityEvent struct {
	Timestamp   time.Time
	Type        string
	ContextData string
}

// Actor is the identity used for data-access decisions. During emulation it
// carries the emulated email; "who is actually authenticated" queries keep
// answering for the real Principal.
type Actor struct {
	PrincipalID string
	Email       string
	Emulated    bool
}
