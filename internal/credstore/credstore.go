// Package credstore persists the bearer credential used by the gateway
// client, plus a process-scoped string store for short-lived UX flags.
package credstore

import "sync"

// TokenKey is the single key the credential is stored under.
const TokenKey = "access_token"

// Store is durable storage for the bearer credential. Implementations do
// not validate the token; only the server decides whether it is valid.
type Store interface {
	// Get returns the stored credential, or ok=false if none is set.
	Get() (token string, ok bool, err error)
	// Put replaces the stored credential.
	Put(token string) error
	// Clear removes the credential. Clearing an empty store is not an error.
	Clear() error
}

// MemoryStore is an in-process Store used for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set, nil
}

func (m *MemoryStore) Put(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}
