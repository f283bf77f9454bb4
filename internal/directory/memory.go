package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Repository used in tests. Probe and allowlist
// errors can be injected to exercise infrastructure-failure paths.
type Memory struct {
	mu sync.Mutex

	roleRecords map[string]map[string]bool // role -> principal id
	admins      []string
	superAdmins []string

	current  map[string]SessionRecord
	archived map[string][]SessionRecord
	activity map[uuid.UUID][]ActivityRecord

	ProbeErr     error
	AllowlistErr error
	AppendErr    error

	probeCalls int
}

// NewMemory creates an empty in-memory Repository.
func NewMemory() *Memory {
	return &Memory{
		roleRecords: make(map[string]map[string]bool),
		current:     make(map[string]SessionRecord),
		archived:    make(map[string][]SessionRecord),
		activity:    make(map[uuid.UUID][]ActivityRecord),
	}
}

// AddRoleRecord registers an existence-check record for the role.
func (m *Memory) AddRoleRecord(role, principalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roleRecords[role] == nil {
		m.roleRecords[role] = make(map[string]bool)
	}
	m.roleRecords[role][principalID] = true
}

// SetAdminAllowlist replaces the admin allowlist.
func (m *Memory) SetAdminAllowlist(emails ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins = emails
}

// SetSuperAdminAllowlist replaces the super-admin allowlist.
func (m *Memory) SetSuperAdminAllowlist(emails ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.superAdmins = emails
}

func (m *Memory) HasRoleRecord(_ context.Context, role, principalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeCalls++
	if m.ProbeErr != nil {
		return false, m.ProbeErr
	}
	return m.roleRecords[role][principalID], nil
}

func (m *Memory) AdminAllowlist(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AllowlistErr != nil {
		return nil, m.AllowlistErr
	}
	return append([]string(nil), m.admins...), nil
}

func (m *Memory) SuperAdminAllowlist(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AllowlistErr != nil {
		return nil, m.AllowlistErr
	}
	return append([]string(nil), m.superAdmins...), nil
}

func (m *Memory) StartSession(_ context.Context, principalID string, sessionID uuid.UUID, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.current[principalID]; ok {
		m.archived[principalID] = append(m.archived[principalID], prev)
	}
	m.current[principalID] = SessionRecord{
		SessionID:   sessionID,
		PrincipalID: principalID,
		StartedAt:   startedAt,
	}
	return nil
}

func (m *Memory) AppendActivity(_ context.Context, _ string, sessionID uuid.UUID, events []ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.activity[sessionID] = append(m.activity[sessionID], events...)
	return nil
}

// CurrentSession returns the recorded current session for the principal.
func (m *Memory) CurrentSession(principalID string) (SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.current[principalID]
	return rec, ok
}

// ArchivedSessions returns the pending-archive records, oldest first.
func (m *Memory) ArchivedSessions(principalID string) []SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SessionRecord(nil), m.archived[principalID]...)
}

// Activity returns the persisted activity log for a session.
func (m *Memory) Activity(sessionID uuid.UUID) []ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActivityRecord(nil), m.activity[sessionID]...)
}

// ProbeCalls reports how many role probes have been issued.
func (m *Memory) ProbeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls
}
