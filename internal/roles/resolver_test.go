package roles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classward/sessiond/internal/directory"
	"github.com/classward/sessiond/internal/roles"
)

var defaultOrder = []roles.Role{roles.Parent, roles.HomeEducationGuardian}

func newResolver(repo *directory.Memory) *roles.Resolver {
	return roles.NewResolver(repo, []string{"school.edu"}, defaultOrder)
}

func TestStaffByEmail(t *testing.T) {
	r := newResolver(directory.NewMemory())

	assert.True(t, r.StaffByEmail("jo@school.edu"))
	assert.True(t, r.StaffByEmail("jo@SCHOOL.EDU"))
	assert.False(t, r.StaffByEmail("jo@example.com"))
	assert.False(t, r.StaffByEmail("not-an-email"))
}

func TestResolve_StaffWithElevatedRoles(t *testing.T) {
	repo := directory.NewMemory()
	repo.SetAdminAllowlist("jo@school.edu", "mx@school.edu")
	repo.SetSuperAdminAllowlist("mx@school.edu")
	r := newResolver(repo)
	ctx := context.Background()

	set, err := r.Resolve(ctx, "p1", "jo@school.edu", "")
	require.NoError(t, err)
	assert.True(t, set.Has(roles.Staff))
	assert.True(t, set.Has(roles.Admin))
	assert.False(t, set.Has(roles.SuperAdmin))

	set, err = r.Resolve(ctx, "p2", "mx@school.edu", "")
	require.NoError(t, err)
	assert.True(t, set.Has(roles.SuperAdmin))
}

func TestResolve_StaffSkipsProbes(t *testing.T) {
	repo := directory.NewMemory()
	r := newResolver(repo)

	_, err := r.Resolve(context.Background(), "p1", "jo@school.edu", "")
	require.NoError(t, err)

	assert.Zero(t, repo.ProbeCalls(), "staff resolution never probes non-staff roles")
}

func TestResolve_ParentBeforeFallback(t *testing.T) {
	repo := directory.NewMemory()
	repo.AddRoleRecord("parent", "p1")
	r := newResolver(repo)

	set, err := r.Resolve(context.Background(), "p1", "jo@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, []roles.Role{roles.Parent}, set.List())
}

func TestResolve_GuardianByEntrySurface(t *testing.T) {
	repo := directory.NewMemory()
	r := newResolver(repo)
	ctx := context.Background()

	set, err := r.Resolve(ctx, "p1", "jo@example.com", roles.EntrySurfaceHomeEducation)
	require.NoError(t, err)
	assert.Equal(t, []roles.Role{roles.HomeEducationGuardian}, set.List())

	set, err = r.Resolve(ctx, "p1", "jo@example.com", "web")
	require.NoError(t, err)
	assert.Equal(t, []roles.Role{roles.Student}, set.List(), "guardian requires the home education surface")
}

func TestResolve_StudentFallback(t *testing.T) {
	r := newResolver(directory.NewMemory())

	set, err := r.Resolve(context.Background(), "p1", "jo@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, []roles.Role{roles.Student}, set.List())
}

func TestResolve_Deterministic(t *testing.T) {
	repo := directory.NewMemory()
	repo.SetAdminAllowlist("jo@school.edu")
	repo.AddRoleRecord("parent", "p2")
	r := newResolver(repo)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "p1", "jo@school.edu", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(ctx, "p1", "jo@school.edu", "")
		require.NoError(t, err)
		assert.Equal(t, first.List(), again.List())
	}
}

func TestResolve_AllowlistFailureDegradesToStaff(t *testing.T) {
	repo := directory.NewMemory()
	repo.AllowlistErr = errors.New("connection refused")
	r := newResolver(repo)

	set, err := r.Resolve(context.Background(), "p1", "jo@school.edu", "")
	require.Error(t, err)
	assert.True(t, set.Has(roles.Staff), "staff stands as the least-privileged known fact")
	assert.False(t, set.Has(roles.Admin))
}

func TestResolve_ProbeFailureDegradesToStudent(t *testing.T) {
	repo := directory.NewMemory()
	repo.AddRoleRecord("parent", "p1")
	repo.ProbeErr = errors.New("connection refused")
	r := newResolver(repo)

	set, err := r.Resolve(context.Background(), "p1", "jo@example.com", "")
	require.Error(t, err)
	assert.Equal(t, []roles.Role{roles.Student}, set.List())
}
