package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classward/sessiond/internal/clock"
)

type fakeSource struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls int
}

func (f *fakeSource) Renew(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.raw, f.err
}

func (f *fakeSource) set(raw string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw, f.err = raw, err
}

func (f *fakeSource) renewCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type renewSink struct {
	mu   sync.Mutex
	raws []string
}

func (r *renewSink) apply(_ uint64, raw string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raws = append(r.raws, raw)
}

func (r *renewSink) applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.raws...)
}

func newTestScheduler(active bool) (*scheduler, *clock.Fake, *fakeSource, *renewSink) {
	clk := clock.NewFake(wdStart)
	src := &fakeSource{raw: "renewed"}
	sink := &renewSink{}
	s := newScheduler(clk, src, discardLogger(), time.Minute, 5*time.Minute,
		func() bool { return active }, sink.apply)
	return s, clk, src, sink
}

func TestScheduler_SchedulesInsideThresholdWhenActive(t *testing.T) {
	s, clk, src, sink := newTestScheduler(true)

	s.arm(wdStart.Add(4*time.Minute), 1)
	require.True(t, s.scheduled())

	// Renewal lands at expiry minus the lead.
	clk.Advance(3 * time.Minute)
	assert.Equal(t, 1, src.renewCalls())
	assert.Equal(t, []string{"renewed"}, sink.applied())
}

func TestScheduler_SkipsInactiveSession(t *testing.T) {
	s, clk, src, _ := newTestScheduler(false)

	s.arm(wdStart.Add(4*time.Minute), 1)
	assert.False(t, s.scheduled(), "an inactive session is left to expire naturally")

	clk.Advance(10 * time.Minute)
	assert.Zero(t, src.renewCalls())
}

func TestScheduler_OutsideThresholdNotScheduled(t *testing.T) {
	s, _, _, _ := newTestScheduler(true)

	s.arm(wdStart.Add(time.Hour), 1)
	assert.False(t, s.scheduled())
}

func TestScheduler_RefreshIfNeeded(t *testing.T) {
	s, _, src, sink := newTestScheduler(true)
	ctx := context.Background()

	s.arm(wdStart.Add(time.Hour), 1)
	require.NoError(t, s.refreshIfNeeded(ctx))
	assert.Zero(t, src.renewCalls(), "no renewal outside the threshold")

	s.arm(wdStart.Add(4*time.Minute), 2)
	require.NoError(t, s.refreshIfNeeded(ctx))
	assert.Equal(t, 1, src.renewCalls())
	assert.Equal(t, []string{"renewed"}, sink.applied())
}

func TestScheduler_RefreshFailureIsReturnedNotApplied(t *testing.T) {
	s, _, src, sink := newTestScheduler(true)
	src.set("", errors.New("issuer unreachable"))

	s.arm(wdStart.Add(4*time.Minute), 1)
	err := s.refreshIfNeeded(context.Background())
	require.Error(t, err)
	assert.Empty(t, sink.applied())
}

func TestScheduler_StaleGenerationDiscarded(t *testing.T) {
	s, clk, _, sink := newTestScheduler(true)

	s.arm(wdStart.Add(4*time.Minute), 1)
	s.stop()

	clk.Advance(10 * time.Minute)
	assert.Empty(t, sink.applied(), "results for a superseded generation are discarded")
}
