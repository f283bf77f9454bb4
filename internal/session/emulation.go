package session

import "github.com/classward/sessiond/internal/roles"

// EmulatedIdentity is the overlay an elevated principal acts through on read
// paths. It never replaces the underlying credential, extends its lifetime,
// or alters the real principal's role facts.
type EmulatedIdentity struct {
	Email   string
	Profile map[string]string
}

// StartEmulation overlays the target identity on the current session. The
// real principal must hold both staff and admin.
func (o *Orchestrator) StartEmulation(target EmulatedIdentity) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateActive || o.principal == nil {
		return ErrNotAuthenticated
	}
	if !o.principal.Roles.Has(roles.Staff) || !o.principal.Roles.Has(roles.Admin) {
		return ErrEmulationForbidden
	}

	o.emulated = &target
	o.logger.Info("emulation started",
		"principal", o.principal.ID,
		"target", target.Email,
	)
	return nil
}

// StopEmulation removes the overlay. Emulation never expires on its own; the
// real principal's inactivity clock keeps running underneath regardless.
func (o *Orchestrator) StopEmulation() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.emulated == nil {
		return ErrNotEmulating
	}

	target := o.emulated.Email
	o.emulated = nil
	o.logger.Info("emulation stopped", "target", target)
	return nil
}

// Emulating reports whether an overlay is active.
func (o *Orchestrator) Emulating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emulated != nil
}
