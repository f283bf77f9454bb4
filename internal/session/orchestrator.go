// Package session implements the authenticated session lifecycle: the state
// machine that decides whether the signed-in principal is still valid, when
// its credential is silently renewed, and when the session is terminated.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classward/sessiond/internal/clock"
	"github.com/classward/sessiond/internal/credential"
	"github.com/classward/sessiond/internal/directory"
	"github.com/classward/sessiond/internal/roles"
	"github.com/classward/sessiond/internal/store"
)

// State is the orchestrator's lifecycle state. Exactly one of Active or
// Unauthenticated holds at any observable instant.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateActive          State = "active"
	StateExpiring        State = "expiring"
)

// ClaimsSignal delivers the remote claims-metadata-changed push for a
// principal. Only arrival matters, not content.
type ClaimsSignal interface {
	Watch(ctx context.Context, principalID string, onChange func()) error
}

// Config tunes the session lifecycle.
type Config struct {
	InactivityWindow time.Duration
	RenewalLead      time.Duration
	RenewalThreshold time.Duration
	FlushInterval    time.Duration
	BufferCap        int
	RefreshAttempts  int
	RefreshBackoff   time.Duration
	Blocklist        []string
}

func (c *Config) applyDefaults() {
	if c.InactivityWindow <= 0 {
		c.InactivityWindow = 60 * time.Minute
	}
	if c.RenewalLead <= 0 {
		c.RenewalLead = time.Minute
	}
	if c.RenewalThreshold <= 0 {
		c.RenewalThreshold = 5 * time.Minute
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.BufferCap <= 0 {
		c.BufferCap = 200
	}
	if c.RefreshAttempts <= 0 {
		c.RefreshAttempts = 5
	}
	if c.RefreshBackoff <= 0 {
		c.RefreshBackoff = 2 * time.Second
	}
}

// Deps are the orchestrator's injected collaborators.
type Deps struct {
	Clock    clock.Clock
	Store    store.ActivityStore
	Repo     directory.Repository
	Parser   *credential.Parser
	Source   credential.Source
	Resolver *roles.Resolver
	Signal   ClaimsSignal // optional
	Logger   *slog.Logger
}

// SignInRequest is the input of a signedIn credential event.
type SignInRequest struct {
	RawCredential string
	EntrySurface  string
}

// Orchestrator owns the current Principal and Session and is the only
// component that transitions session state. Watchdog, scheduler, buffer and
// claims watcher signal it; they never mutate its state directly. Async
// results are generation-tagged: anything completing after the session
// generation moved on is discarded, not applied.
type Orchestrator struct {
	cfg       Config
	clock     clock.Clock
	store     store.ActivityStore
	repo      directory.Repository
	parser    *credential.Parser
	source    credential.Source
	resolver  *roles.Resolver
	signal    ClaimsSignal
	logger    *slog.Logger
	blocklist map[string]bool

	watchdog  *watchdog
	scheduler *scheduler
	buffer    *buffer

	mu          sync.Mutex
	gen         uint64
	state       State
	principal   *Principal
	sessionID   uuid.UUID
	emulated    *EmulatedIdentity
	flushTimer  clock.Timer
	watchCancel context.CancelFunc
}

// New wires an Orchestrator from its dependencies.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:       cfg,
		clock:     deps.Clock,
		store:     deps.Store,
		repo:      deps.Repo,
		parser:    deps.Parser,
		source:    deps.Source,
		resolver:  deps.Resolver,
		signal:    deps.Signal,
		logger:    deps.Logger,
		blocklist: make(map[string]bool, len(cfg.Blocklist)),
		state:     StateUnauthenticated,
		buffer:    newBuffer(cfg.BufferCap),
	}
	for _, email := range cfg.Blocklist {
		o.blocklist[strings.ToLower(email)] = true
	}

	o.watchdog = newWatchdog(deps.Clock, deps.Store, deps.Logger, cfg.InactivityWindow, o.expire)
	o.scheduler = newScheduler(deps.Clock, deps.Source, deps.Logger, cfg.RenewalLead, cfg.RenewalThreshold, o.watchdog.active, o.applyRenewal)
	return o
}

// SignIn handles the signedIn credential event: blocklist check before any
// directory read, role resolution, session rotation, then timers. The new
// state is published only after all of it has completed, so no consumer can
// observe a half-initialized principal.
func (o *Orchestrator) SignIn(ctx context.Context, req SignInRequest) (*Principal, error) {
	cred, err := o.parser.Parse(req.RawCredential)
	if err != nil {
		return nil, err
	}

	if o.blocklist[strings.ToLower(cred.Email)] {
		// Full sign-out, and no directory read has happened yet: the
		// existence of blocked-account state stays unleakable.
		o.SignOut(ctx, "blocked identity")
		o.logger.Warn("blocked identity attempted sign-in", "principal", cred.Subject)
		return nil, ErrBlockedIdentity
	}
	if !cred.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	o.mu.Lock()
	o.signOutLocked()
	gen := o.gen
	o.state = StateAuthenticating
	o.mu.Unlock()

	roleSet, roleErr := o.resolver.Resolve(ctx, cred.Subject, cred.Email, req.EntrySurface)
	if roleErr != nil {
		o.logger.Warn("role resolution degraded", "principal", cred.Subject, "error", roleErr)
	}

	sessionID := uuid.New()
	if err := o.repo.StartSession(ctx, cred.Subject, sessionID, o.clock.Now()); err != nil {
		o.abort(gen)
		return nil, err
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil, ErrSignInSuperseded
	}
	o.principal = &Principal{
		ID:                  cred.Subject,
		Email:               cred.Email,
		EmailVerified:       cred.EmailVerified,
		CredentialExpiresAt: cred.ExpiresAt,
		Roles:               roleSet,
	}
	o.sessionID = sessionID
	o.mu.Unlock()

	// Durable last-activity write happens inside watchdog start, before
	// any timer is armed.
	if err := o.watchdog.start(ctx, cred.Subject, gen); err != nil {
		o.abort(gen)
		return nil, err
	}
	o.scheduler.arm(cred.ExpiresAt, gen)

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil, ErrSignInSuperseded
	}
	o.armFlushLocked(gen)
	o.startWatchLocked(gen, cred.Subject)
	o.state = StateActive
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("session established",
		"principal", cred.Subject,
		"session", sessionID,
		"roles", roleSet.List(),
	)
	return snapshot, nil
}

// SignOut handles the signedOut credential event: timers stopped, buffer
// cleared, durable activity cleared, state Unauthenticated.
func (o *Orchestrator) SignOut(ctx context.Context, reason string) {
	o.mu.Lock()
	principal := o.signOutLocked()
	o.mu.Unlock()

	if principal == nil {
		return
	}
	if err := o.store.ClearLastActivity(ctx, principal.ID); err != nil {
		o.logger.Warn("clearing durable activity failed", "principal", principal.ID, "error", err)
	}
	o.logger.Info("signed out", "principal", principal.ID, "reason", reason)
}

// Renewed handles the renewed credential event: expiry is re-derived and the
// renewal timer re-armed without rotating the session id or re-resolving
// role facts. Renewal must stay cheaper than initial sign-in.
func (o *Orchestrator) Renewed(raw string) error {
	cred, err := o.parser.Parse(raw)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.state != StateActive || o.principal == nil || o.principal.ID != cred.Subject {
		o.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen := o.gen
	o.principal.CredentialExpiresAt = cred.ExpiresAt
	o.mu.Unlock()

	o.scheduler.arm(cred.ExpiresAt, gen)
	return nil
}

// RecordActivity is the narrow entry point for user-interaction signals from
// any runtime. It buffers the event, refreshes the durable activity
// timestamp, and gives an almost-expired credential a renewal chance.
func (o *Orchestrator) RecordActivity(ctx context.Context, ev ActivityEvent) error {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return ErrNotAuthenticated
	}
	o.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.clock.Now()
	}
	o.buffer.add(ev)

	if err := o.watchdog.touch(ctx); err != nil {
		return err
	}
	if err := o.scheduler.refreshIfNeeded(ctx); err != nil {
		// Opportunistic; retried on the next activity signal.
		o.logger.Warn("opportunistic renewal failed", "error", err)
	}
	return nil
}

// Foreground re-evaluates inactivity when the client surface becomes visible
// again, with the wider grace buffer.
func (o *Orchestrator) Foreground() {
	o.watchdog.foreground()
}

// RefreshIfNeeded renews the credential when it is close to expiry.
func (o *Orchestrator) RefreshIfNeeded(ctx context.Context) error {
	o.mu.Lock()
	active := o.state == StateActive
	o.mu.Unlock()
	if !active {
		return ErrNotAuthenticated
	}
	return o.scheduler.refreshIfNeeded(ctx)
}

// CurrentPrincipal returns a copy of the authenticated principal, or nil.
func (o *Orchestrator) CurrentPrincipal() *Principal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// HasRole reports a role fact about the real principal. Emulation never
// changes the answer.
func (o *Orchestrator) HasRole(r roles.Role) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateActive || o.principal == nil {
		return false
	}
	return o.principal.Roles.Has(r)
}

// CurrentActor resolves the identity used for data-access decisions.
func (o *Orchestrator) CurrentActor() (Actor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateActive || o.principal == nil {
		return Actor{}, ErrNotAuthenticated
	}
	if o.emulated != nil {
		return Actor{PrincipalID: o.principal.ID, Email: o.emulated.Email, Emulated: true}, nil
	}
	return Actor{PrincipalID: o.principal.ID, Email: o.principal.Email}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID returns the current session correlation id, or uuid.Nil.
func (o *Orchestrator) SessionID() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// RemainingSessionTime is the minimum of time-to-credential-expiry and
// time-to-inactivity-timeout, for countdown warnings.
func (o *Orchestrator) RemainingSessionTime() time.Duration {
	o.mu.Lock()
	if o.state != StateActive || o.principal == nil {
		o.mu.Unlock()
		return 0
	}
	expiresAt := o.principal.CredentialExpiresAt
	o.mu.Unlock()

	credRemaining := expiresAt.Sub(o.clock.Now())
	if credRemaining < 0 {
		credRemaining = 0
	}
	inactRemaining := o.watchdog.remaining()
	if credRemaining < inactRemaining {
		return credRemaining
	}
	return inactRemaining
}

// Close stops timers and background watches without clearing the durable
// activity record, so a restart on the same device keeps its history.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.teardownLocked()
	o.state = StateUnauthenticated
	o.principal = nil
	o.emulated = nil
	o.sessionID = uuid.Nil
}

// expire is the watchdog's forced sign-out. It runs the same teardown as an
// explicit sign-out, never a partial one, and the generation check makes it
// idempotent across coalesced timer fires.
func (o *Orchestrator) expire(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.state != StateActive {
		o.mu.Unlock()
		return
	}
	o.state = StateExpiring
	principal := o.signOutLocked()
	o.mu.Unlock()

	if principal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.store.ClearLastActivity(ctx, principal.ID); err != nil {
		o.logger.Warn("clearing durable activity failed", "principal", principal.ID, "error", err)
	}
	o.logger.Info("signed out", "principal", principal.ID, "reason", "inactivity timeout")
}

// forceRefresh re-syncs the credential after a claims-metadata change. Role
// facts baked into the credential must be re-derived, so this path also
// re-resolves roles. The loop is bounded: a missed or spurious push can
// never hang resolution.
func (o *Orchestrator) forceRefresh(gen uint64) {
	for attempt := 1; attempt <= o.cfg.RefreshAttempts; attempt++ {
		o.mu.Lock()
		stale := o.gen != gen
		o.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		raw, err := o.source.Renew(ctx)
		cancel()
		if err == nil {
			o.applyRefreshedCredential(gen, raw)
			return
		}
		o.logger.Warn("claims-changed refresh attempt failed", "attempt", attempt, "error", err)
		if attempt < o.cfg.RefreshAttempts {
			o.sleep(o.cfg.RefreshBackoff)
		}
	}
	o.logger.Warn("claims-changed refresh gave up", "attempts", o.cfg.RefreshAttempts)
}

func (o *Orchestrator) applyRefreshedCredential(gen uint64, raw string) {
	cred, err := o.parser.Parse(raw)
	if err != nil {
		o.logger.Warn("refreshed credential failed to parse", "error", err)
		return
	}

	o.mu.Lock()
	if o.gen != gen || o.principal == nil {
		o.mu.Unlock()
		return
	}
	entrySurface := ""
	if o.principal.Roles.Has(roles.HomeEducationGuardian) {
		entrySurface = roles.EntrySurfaceHomeEducation
	}
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	roleSet, roleErr := o.resolver.Resolve(ctx, cred.Subject, cred.Email, entrySurface)
	cancel()
	if roleErr != nil {
		o.logger.Warn("role re-resolution degraded", "error", roleErr)
	}

	o.mu.Lock()
	if o.gen != gen || o.principal == nil {
		o.mu.Unlock()
		return
	}
	o.principal.CredentialExpiresAt = cred.ExpiresAt
	o.principal.Roles = roleSet
	o.mu.Unlock()

	o.scheduler.arm(cred.ExpiresAt, gen)
	o.logger.Info("credential refreshed after claims change", "principal", cred.Subject, "roles", roleSet.List())
}

// applyRenewal is the scheduler's callback for a silently renewed
// credential. Cheap path: expiry only, no session rotation, no role reset.
func (o *Orchestrator) applyRenewal(gen uint64, raw string) {
	cred, err := o.parser.Parse(raw)
	if err != nil {
		o.logger.Warn("renewed credential failed to parse", "error", err)
		return
	}

	o.mu.Lock()
	if o.gen != gen || o.principal == nil {
		o.mu.Unlock()
		return
	}
	o.principal.CredentialExpiresAt = cred.ExpiresAt
	o.mu.Unlock()

	o.scheduler.arm(cred.ExpiresAt, gen)
	o.logger.Debug("credential silently renewed", "principal", cred.Subject, "expiresAt", cred.ExpiresAt)
}

// flushTick persists buffered activity and re-arms while the session lives.
// Failures are logged and the events stay queued for the next interval.
func (o *Orchestrator) flushTick(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.principal == nil {
		o.mu.Unlock()
		return
	}
	principalID := o.principal.ID
	sessionID := o.sessionID
	o.mu.Unlock()

	events := o.buffer.pending()
	if len(events) > 0 {
		records := make([]directory.ActivityRecord, len(events))
		for i, ev := range events {
			records[i] = directory.ActivityRecord{
				Timestamp:   ev.Timestamp,
				Type:        ev.Type,
				ContextData: ev.ContextData,
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := o.repo.AppendActivity(ctx, principalID, sessionID, records)
		cancel()
		if err != nil {
			o.logger.Warn("activity flush failed", "error", err, "events", len(events))
		} else {
			o.buffer.ack(len(events))
		}
	}

	o.mu.Lock()
	if o.gen == gen {
		o.armFlushLocked(gen)
	}
	o.mu.Unlock()
}

// abort reverts a failed sign-in attempt to Unauthenticated.
func (o *Orchestrator) abort(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	o.signOutLocked()
}

// signOutLocked tears down all session state and bumps the generation so
// every in-flight async result becomes a no-op. Caller holds o.mu.
func (o *Orchestrator) signOutLocked() *Principal {
	o.gen++
	principal := o.principal
	o.teardownLocked()
	o.state = StateUnauthenticated
	o.principal = nil
	o.emulated = nil
	o.sessionID = uuid.Nil
	return principal
}

// teardownLocked stops every timer and background watch. Caller holds o.mu.
func (o *Orchestrator) teardownLocked() {
	o.watchdog.stop()
	o.scheduler.stop()
	if o.flushTimer != nil {
		o.flushTimer.Stop()
		o.flushTimer = nil
	}
	if o.watchCancel != nil {
		o.watchCancel()
		o.watchCancel = nil
	}
	o.buffer.clear()
}

func (o *Orchestrator) armFlushLocked(gen uint64) {
	o.flushTimer = o.clock.AfterFunc(o.cfg.FlushInterval, func() { o.flushTick(gen) })
}

func (o *Orchestrator) startWatchLocked(gen uint64, principalID string) {
	if o.signal == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.watchCancel = cancel
	go func() {
		err := o.signal.Watch(ctx, principalID, func() { o.forceRefresh(gen) })
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Warn("claims-changed watch ended", "principal", principalID, "error", err)
		}
	}()
}

// snapshotLocked copies the principal for publication. Caller holds o.mu.
func (o *Orchestrator) snapshotLocked() *Principal {
	if o.state != StateActive || o.principal == nil {
		return nil
	}
	p := *o.principal
	p.Roles = o.principal.Roles.Clone()
	return &p
}

// sleep waits on the injected clock so backoff is testable.
func (o *Orchestrator) sleep(d time.Duration) {
	done := make(chan struct{})
	o.clock.AfterFunc(d, func() { close(done) })
	<-done
}
