package testutil

import "sync"

// Redirector records external redirects.
type Redirector struct {
	mu   sync.Mutex
	urls []string
}

func (r *Redirector) Redirect(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

// URLs returns every redirect target, in order
func (r *Redirector) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}
