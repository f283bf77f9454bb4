package directory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classward/sessiond/internal/directory"
)

func TestMemory_RoleProbes(t *testing.T) {
	m := directory.NewMemory()
	m.AddRoleRecord("parent", "p1")
	ctx := context.Background()

	ok, err := m.HasRoleRecord(ctx, "parent", "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasRoleRecord(ctx, "parent", "p2")
	require.NoError(t, err)
	assert.False(t, ok, "a missing record is a normal negative")

	assert.Equal(t, 2, m.ProbeCalls())
}

func TestMemory_StartSessionArchivesPrevious(t *testing.T) {
	m := directory.NewMemory()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, m.StartSession(ctx, "p1", first, start))
	require.NoError(t, m.StartSession(ctx, "p1", second, start.Add(time.Hour)))

	current, ok := m.CurrentSession("p1")
	require.True(t, ok)
	assert.Equal(t, second, current.SessionID)

	archived := m.ArchivedSessions("p1")
	require.Len(t, archived, 1)
	assert.Equal(t, first, archived[0].SessionID)
}

func TestMemory_AppendActivity(t *testing.T) {
	m := directory.NewMemory()
	ctx := context.Background()
	sid := uuid.New()

	events := []directory.ActivityRecord{
		{Timestamp: time.Now(), Type: "click"},
		{Timestamp: time.Now(), Type: "scroll"},
	}
	require.NoError(t, m.AppendActivity(ctx, "p1", sid, events))
	require.NoError(t, m.AppendActivity(ctx, "p1", sid, events[:1]))

	assert.Len(t, m.Activity(sid), 3)
}
