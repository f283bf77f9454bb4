package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classward/sessiond/internal/clock"
	"github.com/classward/sessiond/internal/credential"
)

// scheduler tracks the credential expiry and arranges silent renewal while
// the principal is active. An inactive session is deliberately left to
// expire: keeping it alive from a background timer would defeat the
// watchdog. Renewal failures are not fatal; only the watchdog ends sessions.
type scheduler struct {
	clock     clock.Clock
	source    credential.Source
	logger    *slog.Logger
	lead      time.Duration
	threshold time.Duration
	isActive  func() bool
	onRenewed func(gen uint64, raw string)

	mu        sync.Mutex
	timer     clock.Timer
	gen       uint64
	expiresAt time.Time
	renewing  bool
}

func newScheduler(c clock.Clock, source credential.Source, logger *slog.Logger, lead, threshold time.Duration, isActive func() bool, onRenewed func(gen uint64, raw string)) *scheduler {
	return &scheduler{
		clock:     c,
		source:    source,
		logger:    logger,
		lead:      lead,
		threshold: threshold,
		isActive:  isActive,
		onRenewed: onRenewed,
	}
}

// arm records the credential expiry and, when it is inside the renewal
// threshold and the principal is active, schedules a silent renewal shortly
// before the deadline.
func (s *scheduler) arm(expiresAt time.Time, gen uint64) {
	active := s.isActive()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.gen = gen
	s.expiresAt = expiresAt

	ttl := expiresAt.Sub(s.clock.Now())
	if ttl >= s.threshold || !active {
		return
	}

	delay := ttl - s.lead
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.renew(gen) })
}

// refreshIfNeeded renews immediately when the credential is inside the
// renewal threshold. It collapses "activity happened" and "token might need
// renewal" into one call, so consumers never reason about token lifetime.
func (s *scheduler) refreshIfNeeded(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	expiresAt := s.expiresAt
	busy := s.renewing
	s.mu.Unlock()

	if busy || expiresAt.IsZero() {
		return nil
	}
	if expiresAt.Sub(s.clock.Now()) >= s.threshold {
		return nil
	}

	s.mu.Lock()
	if s.renewing {
		s.mu.Unlock()
		return nil
	}
	s.renewing = true
	s.mu.Unlock()

	raw, err := s.source.Renew(ctx)

	s.mu.Lock()
	s.renewing = false
	stale := s.gen != gen
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("renewing credential: %w", err)
	}
	if stale {
		return nil
	}
	s.onRenewed(gen, raw)
	return nil
}

// renew is the scheduled silent-renewal path.
func (s *scheduler) renew(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	raw, err := s.source.Renew(ctx)
	if err != nil {
		// Retried opportunistically on the next activity signal; the
		// existing credential may still have life in it.
		s.logger.Warn("silent credential renewal failed", "error", err)
		return
	}

	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.onRenewed(gen, raw)
}

// scheduled reports whether a renewal timer is currently armed.
func (s *scheduler) scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.expiresAt = time.Time{}
}

func (s *scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
