package credstore

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// ReturnURLKey holds the page to return to after an external
// authorization round-trip.
const ReturnURLKey = "auth_return_url"

// DefaultFlagTTL bounds how long a flag waits to be read. An external
// authorization that takes longer is treated as abandoned.
const DefaultFlagTTL = 10 * time.Minute

// FlagStore keeps short-lived flags where a later process can find them.
type FlagStore interface {
	PutFlag(key, value string, expires time.Time) error
	// GetFlag returns ok=false for missing and expired flags.
	GetFlag(key string) (value string, ok bool, err error)
	DeleteFlag(key string) error
}

// ScopedStore is string storage for the duration of one user flow, the
// equivalent of a browser tab's session storage. Entries expire after a
// TTL. With a FlagStore behind it, entries also reach the next lens
// invocation, which is where an external authorization flow finishes.
type ScopedStore struct {
	c       *cache.Cache
	ttl     time.Duration
	backing FlagStore
}

type ScopedOption func(*ScopedStore)

// WithFlagStore persists entries to fs as well as the in-process cache.
func WithFlagStore(fs FlagStore) ScopedOption {
	return func(s *ScopedStore) { s.backing = fs }
}

// WithTTL sets how long entries live. d <= 0 keeps DefaultFlagTTL.
func WithTTL(d time.Duration) ScopedOption {
	return func(s *ScopedStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewScopedStore returns an empty ScopedStore
func NewScopedStore(opts ...ScopedOption) *ScopedStore {
	s := &ScopedStore{ttl: DefaultFlagTTL}
	for _, opt := range opts {
		opt(s)
	}
	s.c = cache.New(s.ttl, 2*s.ttl)
	return s
}

func (s *ScopedStore) Set(key, value string) error {
	s.c.Set(key, value, cache.DefaultExpiration)
	if s.backing == nil {
		return nil
	}
	return s.backing.PutFlag(key, value, time.Now().Add(s.ttl))
}

func (s *ScopedStore) Get(key string) (string, bool, error) {
	if v, ok := s.c.Get(key); ok {
		return v.(string), true, nil
	}
	if s.backing == nil {
		return "", false, nil
	}
	v, ok, err := s.backing.GetFlag(key)
	if err != nil || !ok {
		return "", false, err
	}
	s.c.Set(key, v, cache.DefaultExpiration)
	return v, true, nil
}

func (s *ScopedStore) Remove(key string) error {
	s.c.Delete(key)
	if s.backing == nil {
		return nil
	}
	return s.backing.DeleteFlag(key)
}

// Take returns key's value and removes it, so a flag is acted on once.
func (s *ScopedStore) Take(key string) (string, bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", false, err
	}
	return v, true, s.Remove(key)
}
