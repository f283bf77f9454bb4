package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/classward/sessiond/internal/directory"
)

// EntrySurfaceHomeEducation marks sign-ins arriving through the home
// education entry point. Guardian status is a context of access derived from
// this surface, not from a database flag.
const EntrySurfaceHomeEducation = "homeEducation"

// Resolver computes a principal's role set. Staff is a structural property
// of the email domain; elevated roles always require the allowlists; the
// non-staff roles are probed in a configured priority order with Student as
// the hard fallback.
type Resolver struct {
	repo         directory.Repository
	staffDomains []string
	probeOrder   []Role
}

// NewResolver creates a Resolver. probeOrder lists the non-staff roles to
// probe, highest priority first.
func NewResolver(repo directory.Repository, staffDomains []string, probeOrder []Role) *Resolver {
	return &Resolver{
		repo:         repo,
		staffDomains: staffDomains,
		probeOrder:   probeOrder,
	}
}

// StaffByEmail reports the cheap, synchronous staff fact. It is computable
// before any round trip, so callers may gate staff navigation optimistically,
// but it must never by itself grant elevated access.
func (r *Resolver) StaffByEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range r.staffDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Resolve computes the full role set for a principal. The returned set is
// always usable; a non-nil error marks it as degraded by an infrastructure
// failure, to be re-resolved on the next credential refresh.
func (r *Resolver) Resolve(ctx context.Context, principalID, email, entrySurface string) (Set, error) {
	if r.StaffByEmail(email) {
		return r.resolveStaff(ctx, email)
	}
	return r.resolveNonStaff(ctx, principalID, entrySurface)
}

// resolveStaff adds admin and super-admin facts by allowlist membership.
// The allowlists are privileged reads and are fetched only after staff
// status is established.
func (r *Resolver) resolveStaff(ctx context.Context, email string) (Set, error) {
	set := NewSet(Staff)
	lowered := strings.ToLower(email)

	admins, err := r.repo.AdminAllowlist(ctx)
	if err != nil {
		// Degraded: staff stands as the least-privileged known fact.
		return set, fmt.Errorf("reading admin allowlist: %w", err)
	}
	if containsFold(admins, lowered) {
		set[Admin] = true
	}

	supers, err := r.repo.SuperAdminAllowlist(ctx)
	if err != nil {
		return set, fmt.Errorf("reading super-admin allowlist: %w", err)
	}
	if containsFold(supers, lowered) {
		set[SuperAdmin] = true
	}

	return set, nil
}

// resolveNonStaff probes roles in priority order; the first positive wins.
func (r *Resolver) resolveNonStaff(ctx context.Context, principalID, entrySurface string) (Set, error) {
	for _, role := range r.probeOrder {
		switch role {
		case HomeEducationGuardian:
			if entrySurface == EntrySurfaceHomeEducation {
				return NewSet(HomeEducationGuardian), nil
			}
		default:
			found, err := r.repo.HasRoleRecord(ctx, string(role), principalID)
			if err != nil {
				// Infrastructure failure: fall back to the
				// least-privileged role until the next refresh.
				return NewSet(Student), fmt.Errorf("probing %s record: %w", role, err)
			}
			if found {
				return NewSet(role), nil
			}
		}
	}
	return NewSet(Student), nil
}

func containsFold(list []string, lowered string) bool {
	for _, entry := range list {
		if strings.ToLower(entry) == lowered {
			return true
		}
	}
	return false
}
