package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classward/sessiond/internal/clock"
	"github.com/classward/sessiond/internal/store"
)

const (
	// timerGrace absorbs coalesced or late timer fires under throttling.
	timerGrace = 30 * time.Second
	// resumeGrace is wider: tab-switch and wake jitter must never by
	// itself log anyone out.
	resumeGrace = 2 * time.Minute

	storeTimeout = 10 * time.Second
)

// watchdog guarantees sign-out after the inactivity window. It trusts the
// durable last-activity timestamp over in-process timers: a timer fire is
// only a prompt to re-check, never by itself a reason to sign out, which is
// what keeps device sleep from producing false logouts.
type watchdog struct {
	clock    clock.Clock
	store    store.ActivityStore
	logger   *slog.Logger
	window   time.Duration
	onExpire func(gen uint64)

	mu          sync.Mutex
	timer       clock.Timer
	gen         uint64
	principalID string
	lastSeen    time.Time // cache of the durable value
}

func newWatchdog(c clock.Clock, s store.ActivityStore, logger *slog.Logger, window time.Duration, onExpire func(gen uint64)) *watchdog {
	return &watchdog{
		clock:    c,
		store:    s,
		logger:   logger,
		window:   window,
		onExpire: onExpire,
	}
}

// start begins a new inactivity window for the principal. The durable
// timestamp is written before the timer is armed, so a crash between the two
// never leaves a timer running against stale data.
func (w *watchdog) start(ctx context.Context, principalID string, gen uint64) error {
	now := w.clock.Now()
	if err := w.store.SetLastActivity(ctx, principalID, now); err != nil {
		return fmt.Errorf("recording session start activity: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.principalID = principalID
	w.gen = gen
	w.lastSeen = now
	w.armLocked(w.window + timerGrace)
	return nil
}

// touch records fresh activity: durable write first, then re-arm.
func (w *watchdog) touch(ctx context.Context) error {
	w.mu.Lock()
	principalID, gen := w.principalID, w.gen
	w.mu.Unlock()
	if principalID == "" {
		return nil
	}

	now := w.clock.Now()
	if err := w.store.SetLastActivity(ctx, principalID, now); err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return nil
	}
	w.lastSeen = now
	w.stopTimerLocked()
	w.armLocked(w.window + timerGrace)
	return nil
}

// foreground re-evaluates elapsed inactivity when the client resurfaces,
// with the wider grace buffer.
func (w *watchdog) foreground() {
	w.mu.Lock()
	gen := w.gen
	w.mu.Unlock()
	w.evaluate(gen, resumeGrace)
}

func (w *watchdog) onTimer(gen uint64) {
	w.evaluate(gen, timerGrace)
}

// evaluate re-reads the durable timestamp and decides between forced
// sign-out and re-arming. A timer that fired late because the device slept
// re-arms when the durable value shows recent activity.
func (w *watchdog) evaluate(gen uint64, grace time.Duration) {
	w.mu.Lock()
	if w.gen != gen || w.principalID == "" {
		w.mu.Unlock()
		return
	}
	principalID := w.principalID
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	last, ok, err := w.store.LastActivity(ctx, principalID)
	if err != nil {
		w.logger.Warn("durable activity read failed, using cached value", "error", err)
	}
	now := w.clock.Now()

	w.mu.Lock()
	if w.gen != gen || w.principalID == "" {
		w.mu.Unlock()
		return
	}
	if err != nil || !ok {
		last = w.lastSeen
	} else {
		w.lastSeen = last
	}

	elapsed := now.Sub(last)
	if elapsed >= w.window+grace {
		w.stopTimerLocked()
		w.mu.Unlock()
		w.onExpire(gen)
		return
	}

	// Fired early relative to real activity: re-arm for the remainder.
	// The remainder is computed against the grace that made the decision,
	// so a foreground check just past the timer grace still leaves the
	// user the rest of the resume grace to produce activity.
	w.stopTimerLocked()
	w.armLocked(w.window + grace - elapsed)
	w.mu.Unlock()
}

func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.principalID = ""
	w.lastSeen = time.Time{}
}

// active reports whether the principal is inside the inactivity window.
func (w *watchdog) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.principalID == "" {
		return false
	}
	return w.clock.Now().Sub(w.lastSeen) < w.window
}

// remaining is the time left until the inactivity timeout.
func (w *watchdog) remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.principalID == "" {
		return 0
	}
	rem := w.lastSeen.Add(w.window).Sub(w.clock.Now())
	if rem < 0 {
		return 0
	}
	return rem
}

func (w *watchdog) armLocked(d time.Duration) {
	gen := w.gen
	w.timer = w.clock.AfterFunc(d, func() { w.onTimer(gen) })
}

func (w *watchdog) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
