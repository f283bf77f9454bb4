package clock

import (
	"sync"
	"time"
)

// Fake is a manual clock for tests. Time only moves when Advance or Set is
// called; timers that come due fire synchronously on the calling goroutine,
// in deadline order, before the call returns. A large jump via Set models a
// device that was suspended and woke up later.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fake    *Fake
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fake: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers.
func (f *Fake) Advance(d time.Duration) { f.Set(f.Now().Add(d)) }

// Set jumps the clock to an absolute instant. Timers due in the skipped
// interval fire once each, in order; callbacks may arm new timers, which
// also fire if they land inside the jump.
func (f *Fake) Set(now time.Time) {
	for {
		f.mu.Lock()
		if now.Before(f.now) {
			f.mu.Unlock()
			return
		}
		var next *fakeTimer
		for _, t := range f.timers {
			if t.stopped || t.fired || t.at.After(now) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			f.now = now
			f.mu.Unlock()
			return
		}
		if next.at.After(f.now) {
			f.now = next.at
		}
		next.fired = true
		fn := next.fn
		f.mu.Unlock()
		fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
