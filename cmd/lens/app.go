package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/atotto/clipboard"
	"github.com/codelens-dev/lens/internal/applog"
	"github.com/codelens-dev/lens/internal/config"
	"github.com/codelens-dev/lens/internal/credstore"
	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/nav"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/codelens-dev/lens/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// routeAnnotation marks a command as needing a session. Its value is the
// location the command stands for; the guard must allow it before the
// command runs. An empty value opens a session without gating.
const routeAnnotation = "lens/route"

func route(path string) map[string]string {
	return map[string]string{routeAnnotation: path}
}

// routeLocation fills "{id}" in a route from the first argument.
func routeLocation(route string, args []string) nav.Location {
	if strings.Contains(route, "{id}") && len(args) > 0 {
		route = strings.ReplaceAll(route, "{id}", args[0])
	}
	loc, err := nav.ParseLocation(route)
	if err != nil {
		return nav.At(route)
	}
	return loc
}

var (
	errNotSignedIn = errors.New("not signed in (run `lens login`)")
	errExpired     = errors.New("session expired (run `lens login`)")
)

type appOptions struct {
	apiURL    string
	verbose   bool
	noColor   bool
	ephemeral bool
}

// app is everything a command needs to talk to the service.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	errlog  *applog.ErrorLog
	creds   credstore.Store
	db      *credstore.SQLiteStore
	client  *gateway.Client
	session *session.Manager
	reviews *reviews.Store
	router  *nav.Router
	saver   *fileSaver
	ui      *ui
	out     io.Writer
	expired atomic.Bool
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := config.LoadGlobal()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.apiURL != "" {
		cfg.APIURL = opts.apiURL
	}

	log := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, opts.verbose)
	a := &app{cfg: cfg, log: log, out: cmd.OutOrStdout()}

	if el, err := applog.Open(applog.DefaultPath()); err != nil {
		log.WithError(err).Debug("error log unavailable")
	} else {
		a.errlog = el
		log.AddHook(el)
	}

	if opts.ephemeral {
		a.creds = credstore.NewMemoryStore()
	} else {
		db, err := credstore.OpenSQLite(credstore.DefaultPath())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		a.db, a.creds = db, db
	}

	a.ui = newUI(a.out, cfg.NoColor || opts.noColor)
	a.saver = &fileSaver{dir: ".", out: a.out}
	a.client = gateway.New(cfg.APIURL, a.creds, gateway.WithLogger(log))
	scoped := credstore.NewScopedStore()
	if a.db != nil {
		// The link flow starts in one invocation and finishes in another.
		scoped = credstore.NewScopedStore(credstore.WithFlagStore(a.db))
	}
	a.session = session.NewManager(a.client, a.creds,
		session.WithRedirector(&terminalRedirector{out: a.out, copy: a.ui.tty, log: log}),
		session.WithScopedStore(scoped),
		session.WithLogger(log))
	a.reviews = reviews.NewStore(a.client,
		reviews.WithPageSize(cfg.ResolvePageSize()),
		reviews.WithPollInterval(cfg.ResolvePollInterval()),
		reviews.WithSaver(a.saver),
		reviews.WithLogger(log))
	a.router = nav.NewRouter(nav.NewGuard(a.session, nav.WithGuardLogger(log)), nav.At("/"),
		nav.WithRouterLogger(log))
	a.client.SetNavigator(&expiryNavigator{app: a})
	return a, nil
}

func newLogger(w io.Writer, level string, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}

// enter asks the guard for want and explains where it was sent instead.
func (a *app) enter(ctx context.Context, want nav.Location) error {
	// Another lens process may have changed the stored credential.
	a.session.Sync()
	got, err := a.router.Go(ctx, want)
	if err != nil {
		return err
	}
	if got.Path == want.Path {
		return nil
	}
	if got.Path == nav.LoginPath {
		if a.expired.Load() {
			return errExpired
		}
		return errNotSignedIn
	}
	if route, _ := nav.Match(want.Path); route.Guest {
		name := "another account"
		if u := a.session.User(); u != nil {
			name = u.Username
		}
		return fmt.Errorf("already signed in as %s (run `lens logout` first)", name)
	}
	return fmt.Errorf("%s is not available, try %s", want.Path, got.Path)
}

// fail turns an operation's error slot into a command error. A 401 during
// the operation has already ended the session, which says more than the
// slot does.
func (a *app) fail(msg string) error {
	if a.expired.Load() {
		return errExpired
	}
	if msg == "" {
		msg = "request failed"
	}
	return errors.New(msg)
}

// apiError is fail for direct client calls.
func (a *app) apiError(err error, fallback string) error {
	a.log.WithError(err).Debug(fallback)
	return a.fail(gateway.Message(err, fallback))
}

func (a *app) Close() {
	if a.reviews != nil {
		a.reviews.StopPolling()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Debug("close credential store")
		}
	}
	if a.errlog != nil {
		a.log.ReplaceHooks(make(logrus.LevelHooks))
		a.errlog.Close()
	}
}

// expiryNavigator records that the service rejected the credential and
// moves the router to the login location.
type expiryNavigator struct {
	app *app
}

func (n *expiryNavigator) Location() string {
	return n.app.router.Location()
}

func (n *expiryNavigator) Navigate(path string) {
	n.app.expired.Store(true)
	n.app.router.Navigate(path)
}

// terminalRedirector stands in for a browser redirect: it shows the URL
// and copies it to the clipboard when one is available.
type terminalRedirector struct {
	out  io.Writer
	copy bool
	log  logrus.FieldLogger
}

func (r *terminalRedirector) Redirect(url string) {
	fmt.Fprintf(r.out, "Open this URL in your browser to continue:\n\n  %s\n\n", url)
	if !r.copy || clipboard.Unsupported {
		return
	}
	if err := clipboard.WriteAll(url); err != nil {
		r.log.WithError(err).Debug("clipboard unavailable")
		return
	}
	fmt.Fprintln(r.out, "(copied to clipboard)")
}

// fileSaver writes exports into dir.
type fileSaver struct {
	dir string
	out io.Writer
}

func (s *fileSaver) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s\n", path)
	return nil
}
