// Package testutil provides shared test utilities for lens tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/go-chi/chi/v5"
)

type failure struct {
	status  int
	message string
}

type fakeUser struct {
	user     gateway.User
	password string
}

// FakeAPI is an in-memory review service served over httptest. Tests
// script review status sequences and per-route failures.
type FakeAPI struct {
	Server *httptest.Server

	mu        sync.Mutex
	users     map[string]*fakeUser // by email
	tokens    map[string]string    // token -> email
	reviews   map[string]*gateway.Review
	order     []string // review ids, newest first
	scripts   map[string][]gateway.ReviewStatus
	failures  map[string]failure
	delays    map[string]time.Duration
	calls     map[string]int
	nextToken int
	nextID    int
	authURL   string
}

// NewFakeAPI starts a fake service that is shut down when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		users:    make(map[string]*fakeUser),
		tokens:   make(map[string]string),
		reviews:  make(map[string]*gateway.Review),
		scripts:  make(map[string][]gateway.ReviewStatus),
		failures: make(map[string]failure),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
		authURL:  "https://github.com/login/oauth/authorize?client_id=lens",
	}

	r := chi.NewRouter()
	r.Post("/auth/register", f.route("POST /auth/register", false, f.handleRegister))
	r.Post("/auth/login", f.route("POST /auth/login", false, f.handleLogin))
	r.Post("/auth/refresh", f.route("POST /auth/refresh", true, f.handleRefresh))
	r.Post("/auth/change-password", f.route("POST /auth/change-password", true, f.handleChangePassword))
	r.Get("/auth/github", f.route("GET /auth/github", false, f.handleAuthURL))
	r.Delete("/auth/github/link", f.route("DELETE /auth/github/link", true, f.handleUnlink))
	r.Get("/users/me", f.route("GET /users/me", true, f.handleProfile))
	r.Put("/users/me", f.route("PUT /users/me", true, f.handleUpdateProfile))
	r.Delete("/users/me", f.route("DELETE /users/me", true, f.handleDeleteAccount))
	r.Get("/users/repos", f.route("GET /users/repos", true, f.handleRepos))
	r.Post("/reviews", f.route("POST /reviews", true, f.handleCreateReview))
	r.Get("/reviews", f.route("GET /reviews", true, f.handleListReviews))
	r.Get("/reviews/{id}", f.route("GET /reviews/{id}", true, f.handleGetReview))
	r.Delete("/reviews/{id}", f.route("DELETE /reviews/{id}", true, f.handleDeleteReview))
	r.Post("/reviews/{id}/reanalyze", f.route("POST /reviews/{id}/reanalyze", true, f.handleReanalyze))
	r.Get("/reviews/{id}/pdf", f.route("GET /reviews/{id}/pdf", true, f.handleExport("application/pdf", "%PDF-1.4 ")))
	r.Get("/reviews/{id}/markdown", f.route("GET /reviews/{id}/markdown", true, f.handleExport("text/markdown", "# ")))
	r.Get("/github/repos", f.route("GET /github/repos", true, f.handleRepos))
	r.Get("/github/repos/{owner}/{repo}/branches", f.route("GET /github/repos/{owner}/{repo}/branches", true, f.handleBranches))

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake service
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// AddUser registers a user directly, without signing in.
func (f *FakeAPI) AddUser(username, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addUserLocked(username, email, password)
}

// IssueToken returns a new valid token for an existing user. Tokens are
// "t1", "t2", ... in issue order.
func (f *FakeAPI) IssueToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueTokenLocked(email)
}

// Fail makes every request to route (e.g. "GET /users/me") answer with
// status and message until cleared with Fail(route, 0, "").
func (f *FakeAPI) Fail(route string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.failures, route)
		return
	}
	f.failures[route] = failure{status: status, message: message}
}

// Delay holds requests to route for d before answering.
func (f *FakeAPI) Delay(route string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[route] = d
}

// RevokeAll invalidates every issued token.
func (f *FakeAPI) RevokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]string)
}

// PutReview stores a review as-is, newest first.
func (f *FakeAPI) PutReview(r gateway.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[r.ID]; !ok {
		f.order = append([]string{r.ID}, f.order...)
	}
	f.reviews[r.ID] = &r
}

// ScriptStatuses sets the statuses returned by successive GET
// /reviews/{id} calls. The last status repeats once the script is used up.
func (f *FakeAPI) ScriptStatuses(id string, statuses ...gateway.ReviewStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = statuses
}

// Calls returns how many requests reached route.
func (f *FakeAPI) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// SetAuthURL changes the URL returned by GET /auth/github.
func (f *FakeAPI) SetAuthURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authURL = u
}

func (f *FakeAPI) addUserLocked(username, email, password string) *fakeUser {
	u := &fakeUser{
		user: gateway.User{
			ID:        fmt.Sprintf("u%d", len(f.users)+1),
			Email:     email,
			Username:  username,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		},
		password: password,
	}
	f.users[email] = u
	return u
}

func (f *FakeAPI) issueTokenLocked(email string) string {
	f.nextToken++
	token := fmt.Sprintf("t%d", f.nextToken)
	f.tokens[token] = email
	return token
}

type handler func(w http.ResponseWriter, r *http.Request, u *fakeUser)

func (f *FakeAPI) route(name string, requireAuth bool, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[name]++
		fail, failing := f.failures[name]
		delay := f.delays[name]
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if failing {
			writeError(w, fail.status, fail.message)
			return
		}

		f.mu.Lock()
		var u *fakeUser
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if email, ok := f.tokens[token]; ok {
				u = f.users[email]
			}
		}
		f.mu.Unlock()

		if requireAuth && u == nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		h(w, r, u)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": message})
}
