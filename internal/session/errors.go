package session

import "errors"

// ErrBlockedIdentity is returned when a blocklisted identity attempts
// sign-in. No session state is created and no directory read happens first.
var ErrBlockedIdentity = errors.New("identity is blocked")

// ErrUnverifiedEmail is returned at sign-in when the credential's email is
// not verified. No session is created.
var ErrUnverifiedEmail = errors.New("email address is not verified")

// ErrNotAuthenticated is returned by operations that need an active session.
var ErrNotAuthenticated = errors.New("no authenticated session")

// ErrSignInSuperseded is returned when a newer credential event arrived
// while a sign-in was still resolving; the stale result is discarded.
var ErrSignInSuperseded = errors.New("sign-in superseded by a newer credential event")

// ErrEmulationForbidden is returned when the principal lacks the staff and
// admin roles required to emulate.
var ErrEmulationForbidden = errors.New("emulation requires the staff and admin roles")

// ErrNotEmulating is returned by StopEmulation when no overlay is active.
var ErrNotEmulating = errors.New("no emulation in progress")
