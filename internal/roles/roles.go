// Package roles derives a principal's role facts from its credential and the
// authoritative directory, and keeps them fresh via the claims-changed
// signal.
package roles

import "sort"

// Role is one membership fact about a principal. Roles are additive, not
// mutually exclusive; Student is the fallback when nothing else matches.
type Role string

const (
	Student               Role = "student"
	Staff                 Role = "staff"
	Admin                 Role = "admin"
	SuperAdmin            Role = "superAdmin"
	Parent                Role = "parent"
	HomeEducationGuardian Role = "homeEducationGuardian"
)

// Parse maps a wire string to a known Role.
func Parse(s string) (Role, bool) {
	switch Role(s) {
	case Student, Staff, Admin, SuperAdmin, Parent, HomeEducationGuardian:
		return Role(s), true
	}
	return "", false
}

// Set is a principal's resolved role set.
type Set map[Role]bool

// NewSet builds a Set from the given roles.
func NewSet(rs ...Role) Set {
	s := make(Set, len(rs))
	for _, r := range rs {
		s[r] = true
	}
	return s
}

// Has reports membership.
func (s Set) Has(r Role) bool { return s[r] }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for r := range s {
		c[r] = true
	}
	return c
}

// List returns the roles in stable order.
func (s Set) List() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
