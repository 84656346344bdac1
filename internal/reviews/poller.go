package reviews

import (
	"context"
	"sync"
	"time"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is the delay between status checks.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the number of status checks per session.
	DefaultMaxAttempts = 30
)

// pollSession is one run of the poller. Each session owns its cancelled
// flag so a stale timer or fetch from an earlier session can never touch a
// newer one.
type pollSession struct {
	ctx         context.Context
	id          string
	attempts    int
	maxAttempts int
	timer       *time.Timer
	cancelled   bool
	done        chan struct{}
}

// Poller repeatedly fetches one review until it leaves the pending and
// processing states, the attempt budget runs out, or Stop is called. At
// most one session is active at a time.
type Poller struct {
	fetch    func(ctx context.Context, id string) (*gateway.Review, error)
	apply    func(r *gateway.Review)
	interval time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	active *pollSession
	// attempts made by the most recently finished session
	lastAttempts int
}

// NewPoller creates an idle poller. apply runs for every fetched review
// while the session is still live; it must not call back into the poller.
func NewPoller(fetch func(ctx context.Context, id string) (*gateway.Review, error), apply func(r *gateway.Review), interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Poller{fetch: fetch, apply: apply, interval: interval, log: log}
}

// Start begins polling id. It is a no-op while another session is active.
// The first cycle runs before Start returns; later cycles run on a timer.
// maxAttempts <= 0 selects DefaultMaxAttempts.
func (p *Poller) Start(ctx context.Context, id string, maxAttempts int) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		p.log.WithFields(logrus.Fields{"review_id": id, "active": p.active.id}).Debug("already polling, ignoring start")
		return
	}
	s := &pollSession{
		// Cycles outlive the caller's request; only Stop ends them.
		ctx:         context.WithoutCancel(ctx),
		id:          id,
		maxAttempts: maxAttempts,
		done:        make(chan struct{}),
	}
	p.active = s
	p.mu.Unlock()

	p.cycle(s)
}

func (p *Poller) cycle(s *pollSession) {
	p.mu.Lock()
	s.timer = nil
	if s.cancelled || s.attempts >= s.maxAttempts {
		if !s.cancelled {
			p.log.WithFields(logrus.Fields{"review_id": s.id, "attempts": s.attempts}).Info("polling gave up")
		}
		p.finishLocked(s)
		p.mu.Unlock()
		return
	}
	s.attempts++
	p.mu.Unlock()

	review, err := p.fetch(s.ctx, s.id)

	p.mu.Lock()
	defer p.mu.Unlock()
	if s.cancelled {
		return
	}
	if err != nil {
		p.log.WithError(err).WithField("review_id", s.id).Warn("polling error")
		p.finishLocked(s)
		return
	}

	p.apply(review)

	if review.Status.InProgress() {
		s.timer = time.AfterFunc(p.interval, func() { p.cycle(s) })
		return
	}
	p.finishLocked(s)
}

// finishLocked ends s. p.mu must be held.
func (p *Poller) finishLocked(s *pollSession) {
	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if p.active == s {
		p.active = nil
		p.lastAttempts = s.attempts
		close(s.done)
	}
}

// Stop cancels the active session, if any. A fetch already on the wire is
// allowed to finish but its result is discarded. Safe to call when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		p.finishLocked(p.active)
	}
}

// Polling reports whether a session is active.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// Target returns the id and attempt count of the active session.
func (p *Poller) Target() (id string, attempts int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return "", 0, false
	}
	return p.active.id, p.active.attempts, true
}

// Attempts returns how many status checks the active session has made,
// or the last session made if none is active.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return p.active.attempts
	}
	return p.lastAttempts
}

// Wait blocks until the active session ends or ctx is done. It returns
// immediately when idle.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
