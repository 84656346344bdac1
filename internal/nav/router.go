package nav

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Router tracks the current location and moves between locations through
// the guard. It satisfies gateway.Navigator.
type Router struct {
	guard    *Guard
	log      logrus.FieldLogger
	onChange func(from, to Location)

	mu      sync.Mutex
	current Location
	history []Location
}

type RouterOption func(*Router)

// WithOnChange registers fn to run after every completed move.
func WithOnChange(fn func(from, to Location)) RouterOption {
	return func(r *Router) { r.onChange = fn }
}

func WithRouterLogger(log logrus.FieldLogger) RouterOption {
	return func(r *Router) { r.log = log }
}

// NewRouter starts at start without consulting the guard.
func NewRouter(guard *Guard, start Location, opts ...RouterOption) *Router {
	r := &Router{guard: guard, current: start, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go resolves to through the guard and moves there. The lock is not
// held while the guard runs because the guard can trigger requests whose
// 401 handling navigates again.
func (r *Router) Go(ctx context.Context, to Location) (Location, error) {
	dest, err := r.guard.Resolve(ctx, to)
	if err != nil {
		return r.Current(), err
	}
	r.set(dest)
	return dest, nil
}

// Location returns the current path.
func (r *Router) Location() string {
	return r.Current().Path
}

// Navigate moves to path. It is how the gateway sends the user to the
// login page after a 401.
func (r *Router) Navigate(path string) {
	to, err := ParseLocation(path)
	if err != nil {
		r.log.WithError(err).WithField("path", path).Warn("bad navigation target")
		return
	}
	if _, err := r.Go(context.Background(), to); err != nil {
		r.log.WithError(err).WithField("path", path).Warn("navigation failed")
	}
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every location moved to, oldest first.
func (r *Router) History() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Location, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Router) set(to Location) {
	r.mu.Lock()
	from := r.current
	r.current = to
	r.history = append(r.history, to)
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
}
