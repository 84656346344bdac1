package testutil

import "sync"

// Navigator records navigations instead of performing them.
type Navigator struct {
	mu       sync.Mutex
	location string
	visits   []string
}

// NewNavigator returns a Navigator positioned at location
func NewNavigator(location string) *Navigator {
	return &Navigator{location: location}
}

func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *Navigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, path)
	n.location = path
}

// Visits returns every path navigated to, in order
func (n *Navigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}
