// Package nav decides whether a move to a location is allowed, given the
// current session. The same route table serves the CLI, which maps each
// command to a location and asks the guard before running it.
package nav

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Well-known locations.
const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	ProfilePath   = "/profile"
	ReviewsPath   = "/reviews"
	NewReviewPath = "/reviews/new"
	HomePath      = ReviewsPath
)

// Route is one entry of the route table.
type Route struct {
	Name    string
	Pattern string
	// RequiresAuth routes need a credential.
	RequiresAuth bool
	// Guest routes are only for visitors without a credential.
	Guest bool
	// Redirect, when set, sends every visit to another path.
	Redirect string
}

var routes = []Route{
	{Name: "root", Pattern: "/", Redirect: HomePath},
	{Name: "login", Pattern: LoginPath, Guest: true},
	{Name: "register", Pattern: RegisterPath, Guest: true},
	{Name: "profile", Pattern: ProfilePath, RequiresAuth: true},
	{Name: "reviews", Pattern: ReviewsPath, RequiresAuth: true},
	{Name: "new-review", Pattern: NewReviewPath, RequiresAuth: true},
	{Name: "review-detail", Pattern: "/reviews/{id}", RequiresAuth: true},
}

var notFound = Route{Name: "not-found", Redirect: HomePath}

// table matches paths to routes. Handlers are never invoked; only the
// tree lookup is used.
var table = func() *chi.Mux {
	mux := chi.NewMux()
	noop := func(http.ResponseWriter, *http.Request) {}
	for _, r := range routes {
		mux.Get(r.Pattern, noop)
	}
	return mux
}()

// Routes returns a copy of the route table.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Match finds the route for path along with its URL parameters. Unknown
// paths match the not-found route, which redirects home.
func Match(path string) (Route, map[string]string) {
	rctx := chi.NewRouteContext()
	if !table.Match(rctx, http.MethodGet, path) {
		return notFound, nil
	}
	pattern := rctx.RoutePattern()
	for _, r := range routes {
		if r.Pattern == pattern {
			params := make(map[string]string, len(rctx.URLParams.Keys))
			for i, k := range rctx.URLParams.Keys {
				params[k] = rctx.URLParams.Values[i]
			}
			return r, params
		}
	}
	return notFound, nil
}

// Location is a path plus its query.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation splits a "path?query" string.
func ParseLocation(s string) (Location, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return Location{Path: path, Query: u.Query()}, nil
}

// At returns a location with no query.
func At(path string) Location {
	return Location{Path: path}
}

// String returns the full path including the encoded query.
func (l Location) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	var b strings.Builder
	b.WriteString(l.Path)
	b.WriteByte('?')
	b.WriteString(l.Query.Encode())
	return b.String()
}
