package clock

import "time"

// Clock abstracts wall-clock reads and timer scheduling so that every piece
// of timing logic in the session manager can be driven deterministically in
// tests.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run on its own goroutine after d and
	// returns a handle that can stop it before it fires.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the stoppable handle returned by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It reports false if the timer already
	// fired or was already stopped.
	Stop() bool
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
