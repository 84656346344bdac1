// Package session owns the authenticated-user state: the credential, the
// profile it belongs to, and the operations that change either.
//
// A credential is only ever proven invalid by the server. The manager
// therefore treats a stored credential as "authenticated" without checking
// it, and relies on the gateway's 401 handling and on FetchProfile failing
// to drop it.
package session

import (
	"context"
	"sync"

	"github.com/codelens-dev/lens/internal/credstore"
	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/sirupsen/logrus"
)

// Op names an operation that carries its own busy flag and error slot.
type Op string

const (
	OpRegister      Op = "register"
	OpLogin         Op = "login"
	OpExternalLogin Op = "external_login"
	OpExternal      Op = "external" // link and unlink
	OpPassword      Op = "password"
	OpProfile       Op = "profile"
	OpDeleteAccount Op = "delete_account"
)

var fallbackMessages = map[Op]string{
	OpRegister:      "registration failed",
	OpLogin:         "invalid email or password",
	OpExternalLogin: "external sign-in failed",
	OpProfile:       "profile update failed",
	OpPassword:      "password change failed",
	OpDeleteAccount: "account deletion failed",
}

const (
	linkFailed   = "failed to link GitHub account"
	unlinkFailed = "failed to unlink GitHub account"
	persistFail  = "failed to save credential"
	profileRoute = "/profile"
)

// API is the part of the service the manager talks to.
type API interface {
	Register(ctx context.Context, in gateway.RegisterInput) (*gateway.AuthResponse, error)
	Login(ctx context.Context, in gateway.LoginInput) (*gateway.AuthResponse, error)
	ExternalAuthURL(ctx context.Context) (*gateway.ExternalAuthURL, error)
	Profile(ctx context.Context) (*gateway.User, error)
	UpdateProfile(ctx context.Context, in gateway.UpdateUserInput) (*gateway.User, error)
	UnlinkExternal(ctx context.Context) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	DeleteAccount(ctx context.Context) error
	OnUnauthorized(fn func())
}

// Redirector sends the user to an external authorization page.
type Redirector interface {
	Redirect(url string)
}

// Manager is the session state machine. It is safe for concurrent use;
// no lock is held across network calls, so concurrent operations that
// both write the identity resolve as last write wins.
type Manager struct {
	api      API
	store    credstore.Store
	scoped   *credstore.ScopedStore
	redirect Redirector
	log      logrus.FieldLogger

	mu       sync.Mutex
	token    string
	hasToken bool
	user     *gateway.User
	inflight int
	busy     map[Op]int
	errs     map[Op]string
	lastErr  string
}

type Option func(*Manager)

func WithRedirector(r Redirector) Option {
	return func(m *Manager) { m.redirect = r }
}

// WithScopedStore sets where the post-link return URL is kept.
func WithScopedStore(s *credstore.ScopedStore) Option {
	return func(m *Manager) { m.scoped = s }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a manager seeded from the credential in store. It
// subscribes to the API's 401 notifications so a rejected credential
// also drops the in-memory session.
func NewManager(api API, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		store:  store,
		scoped: credstore.NewScopedStore(),
		log:    logrus.StandardLogger(),
		busy:   make(map[Op]int),
		errs:   make(map[Op]string),
	}
	for _, opt := range opts {
		opt(m)
	}

	token, ok, err := store.Get()
	if err != nil {
		m.log.WithError(err).Warn("could not read stored credential")
	} else if ok {
		m.token, m.hasToken = token, true
	}

	api.OnUnauthorized(m.Invalidate)
	return m
}

func (m *Manager) begin(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
	m.busy[op]++
	delete(m.errs, op)
}

func (m *Manager) end(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	m.busy[op]--
	if m.busy[op] == 0 {
		delete(m.busy, op)
	}
}

func (m *Manager) fail(op Op, err error, fallback string) {
	msg := gateway.Message(err, fallback)
	m.log.WithError(err).WithField("op", op).Debug("session operation failed")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = msg
	m.lastErr = msg
}

// setSession persists token and then installs token and user together.
func (m *Manager) setSession(token string, user *gateway.User) error {
	if err := m.store.Put(token); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.hasToken = token, true
	m.user = user
	return nil
}

// setUser replaces the identity unless the credential has gone away in
// the meantime, which keeps identity from outliving its credential.
func (m *Manager) setUser(user *gateway.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasToken {
		return false
	}
	m.user = user
	return true
}

// Register creates an account and signs in with it.
func (m *Manager) Register(ctx context.Context, username, email, password string) bool {
	m.begin(OpRegister)
	defer m.end(OpRegister)

	resp, err := m.api.Register(ctx, gateway.RegisterInput{Username: username, Email: email, Password: password})
	if err != nil {
		m.fail(OpRegister, err, fallbackMessages[OpRegister])
		return false
	}
	if err := m.setSession(resp.Token, &resp.User); err != nil {
		m.fail(OpRegister, err, persistFail)
		return false
	}
	return true
}

// Login signs in with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) bool {
	m.begin(OpLogin)
	defer m.end(OpLogin)

	resp, err := m.api.Login(ctx, gateway.LoginInput{Email: email, Password: password})
	if err != nil {
		m.fail(OpLogin, err, fallbackMessages[OpLogin])
		return false
	}
	if err := m.setSession(resp.Token, &resp.User); err != nil {
		m.fail(OpLogin, err, persistFail)
		return false
	}
	return true
}

// LoginWithExternal sends the user to GitHub. Nothing changes locally until
// HandleExternalCallback runs; on success the busy flag stays raised until
// then, since the user is leaving.
func (m *Manager) LoginWithExternal(ctx context.Context) bool {
	m.begin(OpExternalLogin)

	authURL, err := m.api.ExternalAuthURL(ctx)
	if err != nil {
		m.fail(OpExternalLogin, err, fallbackMessages[OpExternalLogin])
		m.end(OpExternalLogin)
		return false
	}
	m.doRedirect(authURL.URL)
	return true
}

// HandleExternalCallback installs the credential returned by the external
// flow and loads the profile it belongs to. If the profile cannot be
// loaded the session is logged out.
func (m *Manager) HandleExternalCallback(ctx context.Context, token string) {
	m.mu.Lock()
	if m.busy[OpExternalLogin] > 0 {
		m.inflight -= m.busy[OpExternalLogin]
		delete(m.busy, OpExternalLogin)
	}
	m.mu.Unlock()

	if err := m.store.Put(token); err != nil {
		m.fail(OpExternalLogin, err, persistFail)
		return
	}
	m.mu.Lock()
	m.token, m.hasToken = token, true
	m.user = nil
	m.mu.Unlock()

	m.FetchProfile(ctx)
}

// FetchProfile replaces the identity with the server's copy. Any failure is
// taken as proof the credential is no good and logs the session out, since
// a revoked credential and a server hiccup look the same from here.
func (m *Manager) FetchProfile(ctx context.Context) {
	if _, ok := m.Token(); !ok {
		return
	}

	m.begin(OpProfile)
	defer m.end(OpProfile)

	user, err := m.api.Profile(ctx)
	if err != nil {
		m.log.WithError(err).Warn("profile fetch failed, logging out")
		m.Logout()
		return
	}
	m.setUser(user)
}

// UpdateProfile changes username and/or avatar.
func (m *Manager) UpdateProfile(ctx context.Context, in gateway.UpdateUserInput) bool {
	m.begin(OpProfile)
	defer m.end(OpProfile)

	user, err := m.api.UpdateProfile(ctx, in)
	if err != nil {
		m.fail(OpProfile, err, fallbackMessages[OpProfile])
		return false
	}
	m.setUser(user)
	return true
}

// LinkExternal sends the user to GitHub with the current credential so the
// server links the account. The profile page is remembered as the return
// URL for the duration of the round-trip.
func (m *Manager) LinkExternal(ctx context.Context) bool {
	m.begin(OpExternal)
	if err := m.scoped.Set(credstore.ReturnURLKey, profileRoute); err != nil {
		m.log.WithError(err).Warn("could not save return URL")
	}

	authURL, err := m.api.ExternalAuthURL(ctx)
	if err != nil {
		m.fail(OpExternal, err, linkFailed)
		if err := m.scoped.Remove(credstore.ReturnURLKey); err != nil {
			m.log.WithError(err).Warn("could not forget return URL")
		}
		m.end(OpExternal)
		return false
	}
	m.doRedirect(authURL.URL)
	return true
}

// UnlinkExternal detaches the GitHub account and clears the handle on the
// local identity without refetching it.
func (m *Manager) UnlinkExternal(ctx context.Context) bool {
	m.begin(OpExternal)
	defer m.end(OpExternal)

	if err := m.api.UnlinkExternal(ctx); err != nil {
		m.fail(OpExternal, err, unlinkFailed)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil {
		u := *m.user
		u.GitHubLogin = nil
		m.user = &u
	}
	return true
}

// ChangePassword only confirms; it does not touch the session.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) bool {
	m.begin(OpPassword)
	defer m.end(OpPassword)

	if err := m.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		m.fail(OpPassword, err, fallbackMessages[OpPassword])
		return false
	}
	return true
}

// DeleteAccount removes the account and logs out.
func (m *Manager) DeleteAccount(ctx context.Context) bool {
	m.begin(OpDeleteAccount)
	defer m.end(OpDeleteAccount)

	if err := m.api.DeleteAccount(ctx); err != nil {
		m.fail(OpDeleteAccount, err, fallbackMessages[OpDeleteAccount])
		return false
	}
	m.Logout()
	return true
}

// Logout drops identity and credential, in memory and on disk. Idempotent.
func (m *Manager) Logout() {
	m.Invalidate()
	if err := m.store.Clear(); err != nil {
		m.log.WithError(err).Error("failed to clear stored credential")
	}
}

// Invalidate drops the in-memory identity and credential together. The
// gateway calls it after a 401, when it has already cleared storage.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.token, m.hasToken = "", false
}

// Sync re-reads the durable credential and drops whatever in-memory state
// no longer matches it. Another process may have logged out or signed in
// as someone else since the manager was created.
func (m *Manager) Sync() {
	token, ok, err := m.store.Get()
	if err != nil {
		m.log.WithError(err).Warn("could not read stored credential")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !ok:
		m.user = nil
		m.token, m.hasToken = "", false
	case !m.hasToken || token != m.token:
		m.user = nil
		m.token, m.hasToken = token, true
	}
}

// Init loads the profile for a credential that has no identity yet.
func (m *Manager) Init(ctx context.Context) {
	m.mu.Lock()
	needed := m.hasToken && m.user == nil
	m.mu.Unlock()
	if needed {
		m.FetchProfile(ctx)
	}
}

// ReturnURL returns and forgets the page saved before an external
// authorization round-trip.
func (m *Manager) ReturnURL() (string, bool) {
	u, ok, err := m.scoped.Take(credstore.ReturnURLKey)
	if err != nil {
		m.log.WithError(err).Warn("could not read return URL")
	}
	return u, ok
}

func (m *Manager) doRedirect(url string) {
	if m.redirect == nil {
		m.log.WithField("url", url).Warn("no redirector configured")
		return
	}
	m.redirect.Redirect(url)
}
