package nav

import (
	"context"
	"errors"
	"net/url"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/sirupsen/logrus"
)

// Query keys the guard reacts to.
const (
	TokenParam    = "token"
	StatusParam   = "status"
	ErrorParam    = "error"
	RedirectParam = "redirect"

	StatusGitHubLinked = "github_linked"
)

// maxRedirects bounds how many redirects Resolve follows.
const maxRedirects = 8

var ErrRedirectLoop = errors.New("too many redirects")

// Session is what the guard needs from the session manager.
type Session interface {
	Token() (string, bool)
	User() *gateway.User
	HandleExternalCallback(ctx context.Context, token string)
	FetchProfile(ctx context.Context)
	Init(ctx context.Context)
}

// Decision is the outcome of Before: either allow the move, or go to
// Redirect instead.
type Decision struct {
	Redirect *Location
}

func (d Decision) Allowed() bool { return d.Redirect == nil }

func allow() Decision { return Decision{} }

func redirect(to Location) Decision { return Decision{Redirect: &to} }

// Guard runs before every move between locations.
type Guard struct {
	session Session
	log     logrus.FieldLogger
}

type GuardOption func(*Guard)

func WithGuardLogger(log logrus.FieldLogger) GuardOption {
	return func(g *Guard) { g.log = log }
}

func NewGuard(s Session, opts ...GuardOption) *Guard {
	g := &Guard{session: s, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Before decides a single move to to. It may change the session on the
// way: finishing an external sign-in, refreshing the profile after an
// account link, or loading the profile for a bare credential.
func (g *Guard) Before(ctx context.Context, to Location) Decision {
	route, _ := Match(to.Path)
	if route.Redirect != "" {
		return redirect(At(route.Redirect))
	}

	if to.Path == LoginPath {
		if token := to.Query.Get(TokenParam); token != "" {
			g.log.Debug("completing external sign-in")
			g.session.HandleExternalCallback(ctx, token)
			return redirect(At(HomePath))
		}
	}

	if to.Path == ProfilePath && to.Query.Get(StatusParam) == StatusGitHubLinked {
		if _, ok := g.session.Token(); ok {
			g.session.FetchProfile(ctx)
		}
		return redirect(Location{Path: ProfilePath, Query: url.Values{}})
	}

	// The login page shows external sign-in errors itself.
	if to.Path == LoginPath && to.Query.Get(ErrorParam) != "" {
		return allow()
	}

	if _, ok := g.session.Token(); ok && g.session.User() == nil {
		g.session.Init(ctx)
	}

	_, hasToken := g.session.Token()
	if route.RequiresAuth && !hasToken {
		return redirect(Location{
			Path:  LoginPath,
			Query: url.Values{RedirectParam: {to.String()}},
		})
	}
	if route.Guest && hasToken {
		return redirect(At(HomePath))
	}
	return allow()
}

// Resolve follows the guard's redirects from to until a location is
// allowed, and returns it.
func (g *Guard) Resolve(ctx context.Context, to Location) (Location, error) {
	for range maxRedirects {
		d := g.Before(ctx, to)
		if d.Allowed() {
			return to, nil
		}
		g.log.WithFields(logrus.Fields{
			"from": to.String(),
			"to":   d.Redirect.String(),
		}).Debug("redirecting")
		to = *d.Redirect
	}
	return to, ErrRedirectLoop
}
