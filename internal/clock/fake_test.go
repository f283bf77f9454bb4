package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(epoch)

	var fired []string
	f.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	f.AfterFunc(1*time.Minute, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Minute, func() { fired = append(fired, "c") })

	f.Advance(5 * time.Minute)

	assert.Equal(t, []string{"a", "b"}, fired, "due timers fire in deadline order")
	assert.Equal(t, epoch.Add(5*time.Minute), f.Now())

	f.Advance(5 * time.Minute)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
}

func TestFake_StopPreventsFiring(t *testing.T) {
	f := NewFake(epoch)

	fired := false
	timer := f.AfterFunc(time.Minute, func() { fired = true })

	require.True(t, timer.Stop())
	f.Advance(2 * time.Minute)

	assert.False(t, fired)
	assert.False(t, timer.Stop(), "second stop reports false")
}

func TestFake_CallbackMayRearm(t *testing.T) {
	f := NewFake(epoch)

	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			f.AfterFunc(time.Minute, rearm)
		}
	}
	f.AfterFunc(time.Minute, rearm)

	f.Advance(10 * time.Minute)

	assert.Equal(t, 3, count, "re-armed timers landing inside the jump fire too")
}

func TestFake_ClockObservedInsideCallback(t *testing.T) {
	f := NewFake(epoch)

	var seen time.Time
	f.AfterFunc(3*time.Minute, func() { seen = f.Now() })

	f.Advance(30 * time.Minute)

	assert.Equal(t, epoch.Add(3*time.Minute), seen, "callback observes its own deadline, not the jump target")
}
