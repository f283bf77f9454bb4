// Package directory is the authoritative store behind role resolution and
// session tracking: existence-check records per role, the admin and
// super-admin allowlists, and the per-principal session log.
package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityRecord is one buffered user-interaction event as persisted to the
// session activity log.
type ActivityRecord struct {
	Timestamp   time.Time
	Type        string
	ContextData string
}

// SessionRecord mirrors one session-tracking row.
type SessionRecord struct {
	SessionID   uuid.UUID
	PrincipalID string
	StartedAt   time.Time
}

// Repository provides the directory operations the session manager depends
// on. Probe misses are normal negatives, never errors.
type Repository interface {
	// HasRoleRecord reports whether an existence-check record is present
	// for the given role and principal.
	HasRoleRecord(ctx context.Context, role, principalID string) (bool, error)

	AdminAllowlist(ctx context.Context) ([]string, error)
	SuperAdminAllowlist(ctx context.Context) ([]string, error)

	// StartSession records the new current session for the principal and,
	// in the same transaction, marks any previous current session as
	// pending archive. Archived sessions are never deleted; a race with
	// an in-flight activity flush must not lose data.
	StartSession(ctx context.Context, principalID string, sessionID uuid.UUID, startedAt time.Time) error

	// AppendActivity appends flushed events to the session's bounded
	// activity log.
	AppendActivity(ctx context.Context, principalID string, sessionID uuid.UUID, events []ActivityRecord) error
}
