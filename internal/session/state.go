package session

import (
	"sort"

	"github.com/codelens-dev/lens/internal/gateway"
)

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	User      *gateway.User
	Token     string
	HasToken  bool
	Busy      bool
	Pending   []Op
	Errors    map[Op]string
	LastError string
}

// Authenticated reports whether a credential is present. The identity may
// still be loading.
func (s Snapshot) Authenticated() bool {
	return s.HasToken
}

// FullyLoaded reports whether both credential and identity are present.
func (s Snapshot) FullyLoaded() bool {
	return s.HasToken && s.User != nil
}

// HasExternalAccount reports whether a GitHub account is linked.
func (s Snapshot) HasExternalAccount() bool {
	return s.User != nil && s.User.GitHubLogin != nil && *s.User.GitHubLogin != ""
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Token:     m.token,
		HasToken:  m.hasToken,
		Busy:      m.inflight > 0,
		Errors:    make(map[Op]string, len(m.errs)),
		LastError: m.lastErr,
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	for op := range m.busy {
		s.Pending = append(s.Pending, op)
	}
	sort.Slice(s.Pending, func(i, j int) bool { return s.Pending[i] < s.Pending[j] })
	for op, msg := range m.errs {
		s.Errors[op] = msg
	}
	return s
}

func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.hasToken
}

// User returns a copy of the identity, or nil if none is loaded.
func (m *Manager) User() *gateway.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) Authenticated() bool {
	return m.Snapshot().Authenticated()
}

func (m *Manager) FullyLoaded() bool {
	return m.Snapshot().FullyLoaded()
}

func (m *Manager) HasExternalAccount() bool {
	return m.Snapshot().HasExternalAccount()
}

// Busy reports whether any operation is in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// BusyOp reports whether op is in flight.
func (m *Manager) BusyOp(op Op) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[op] > 0
}

// Error returns the message from op's last failure, or "".
func (m *Manager) Error(op Op) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[op]
}

// LastError returns the most recent failure message of any operation.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
