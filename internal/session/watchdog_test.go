package session

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classward/sessiond/internal/clock"
	"github.com/classward/sessiond/internal/store"
)

var wdStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatchdog(window time.Duration) (*watchdog, *clock.Fake, *store.MemoryStore, *atomic.Int32) {
	clk := clock.NewFake(wdStart)
	st := store.NewMemoryStore()
	var expired atomic.Int32
	wd := newWatchdog(clk, st, discardLogger(), window, func(uint64) { expired.Add(1) })
	return wd, clk, st, &expired
}

// suppressTimer simulates an OS that descheduled the in-process timer, as
// happens during sleep or under background-tab throttling.
func suppressTimer(wd *watchdog) {
	wd.mu.Lock()
	wd.stopTimerLocked()
	wd.mu.Unlock()
}

func TestWatchdog_TimerFireChecksDurableValue(t *testing.T) {
	wd, clk, st, expired := newTestWatchdog(time.Hour)
	ctx := context.Background()
	require.NoError(t, wd.start(ctx, "p1", 1))

	// Activity recorded out of band (another tab) after the timer was
	// armed: the fire must trust the durable value and re-arm.
	require.NoError(t, st.SetLastActivity(ctx, "p1", wdStart.Add(45*time.Minute)))

	clk.Advance(time.Hour + timerGrace)
	assert.Zero(t, expired.Load(), "durable activity within the window prevents sign-out")

	clk.Advance(time.Hour)
	assert.Equal(t, int32(1), expired.Load(), "expires once the durable value also elapses")
}

func TestWatchdog_ForegroundWithinResumeGrace(t *testing.T) {
	wd, clk, _, expired := newTestWatchdog(time.Hour)
	require.NoError(t, wd.start(context.Background(), "p1", 1))
	suppressTimer(wd)

	// Wakes just past the timer grace but inside the resume grace.
	clk.Set(wdStart.Add(time.Hour + time.Minute))
	wd.foreground()

	assert.Zero(t, expired.Load(), "tab-switch jitter never causes a logout")
	assert.True(t, wd.active() || wd.remaining() == 0)
}

func TestWatchdog_ForegroundBeyondResumeGrace(t *testing.T) {
	wd, clk, _, expired := newTestWatchdog(time.Hour)
	require.NoError(t, wd.start(context.Background(), "p1", 1))
	suppressTimer(wd)

	clk.Set(wdStart.Add(time.Hour + resumeGrace + time.Second))
	wd.foreground()

	assert.Equal(t, int32(1), expired.Load())
}

func TestWatchdog_StaleGenerationIsNoOp(t *testing.T) {
	wd, clk, _, expired := newTestWatchdog(time.Hour)
	require.NoError(t, wd.start(context.Background(), "p1", 1))
	wd.stop()

	clk.Advance(3 * time.Hour)
	wd.foreground()

	assert.Zero(t, expired.Load(), "a stray fire after teardown is a no-op")
}

func TestWatchdog_TouchWritesDurableThenRearms(t *testing.T) {
	wd, clk, st, expired := newTestWatchdog(time.Hour)
	ctx := context.Background()
	require.NoError(t, wd.start(ctx, "p1", 1))

	clk.Advance(40 * time.Minute)
	require.NoError(t, wd.touch(ctx))

	at, ok, err := st.LastActivity(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wdStart.Add(40*time.Minute), at)

	clk.Advance(50 * time.Minute)
	assert.Zero(t, expired.Load())
	assert.Equal(t, 10*time.Minute, wd.remaining())
}
