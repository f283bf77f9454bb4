package roles

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Watcher subscribes to the claims-metadata change channel for a principal.
// Only the arrival of a message matters; its content is ignored.
type Watcher struct {
	client *redis.Client
}

// NewWatcher creates a Watcher on the given Redis client.
func NewWatcher(client *redis.Client) *Watcher {
	return &Watcher{client: client}
}

func claimsChannel(principalID string) string {
	return "claims-metadata:" + principalID
}

// Watch blocks, invoking onChange for every claims-metadata change signal
// for the principal, until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, principalID string, onChange func()) error {
	sub := w.client.Subscribe(ctx, claimsChannel(principalID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			onChange()
		}
	}
}
