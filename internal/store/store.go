// Package store provides the durable record of when the principal was last
// seen active. The durable value is the single source of truth across
// restarts and tabs; in-memory state is only ever a cache of it.
package store

import (
	"context"
	"time"
)

// ActivityStore persists the last-activity timestamp per principal.
type ActivityStore interface {
	// LastActivity returns the stored timestamp. ok is false when no
	// record exists for the principal.
	LastActivity(ctx context.Context, principalID string) (at time.Time, ok bool, err error)
	SetLastActivity(ctx context.Context, principalID string, at time.Time) error
	ClearLastActivity(ctx context.Context, principalID string) error
}
