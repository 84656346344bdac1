// Package gateway is the single HTTP entry point to the review service.
// It attaches the stored credential to every request and reacts to
// authorization failures by clearing it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/codelens-dev/lens/internal/credstore"
	"github.com/codelens-dev/lens/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoginPath is the location the user is sent to when the session expires.
const LoginPath = "/login"

// ErrUnauthorized matches any *APIError carrying a 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string // the body's "error" field, if any
	Data    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Message extracts the user-facing message from err, or returns fallback
// when the server did not provide one.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Navigator is how the client sends the user to the login view when a
// session is invalidated.
type Navigator interface {
	// Location returns the current navigational location (a path).
	Location() string
	// Navigate forces a full navigation to path.
	Navigate(path string)
}

// Request describes one call to the service. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Body   any
	Query  url.Values
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Header http.Header
	Data   []byte
}

// Client is the HTTP implementation of the service API
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credstore.Store
	nav        Navigator
	log        logrus.FieldLogger

	mu            sync.Mutex
	onUnauthorize []func()
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The default has no
// timeout; callers bound requests with their context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNavigator sets the navigator used to send the user to the login view
// after a 401.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.nav = nav }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the service at baseURL
func New(baseURL string, store credstore.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		store:      store,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized registers fn to run after the credential has been cleared
// in response to a 401, before any navigation.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorize = append(c.onUnauthorize, fn)
}

// SetNavigator replaces the navigator after construction.
func (c *Client) SetNavigator(nav Navigator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nav = nav
}

// Do sends the request. A non-2xx reply is returned as *APIError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.Path,
		"request_id": httpReq.Header.Get("X-Request-ID"),
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.WithField("status", resp.StatusCode).Debug("request completed")
		return &Response{Status: resp.StatusCode, Header: resp.Header, Data: data}, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Data: data, Message: errorField(data)}
	if resp.StatusCode == http.StatusUnauthorized {
		log.Warn("credential rejected, clearing session")
		c.invalidate()
	} else {
		log.WithField("status", resp.StatusCode).Debug("request failed")
	}
	return nil, apiErr
}

// newRequest runs the request stage: encode the body and attach the
// credential when one is stored.
func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	token, ok, err := c.store.Get()
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// invalidate clears the stored credential and sends the user to the login
// view unless they are already there. Concurrent 401s may each run this;
// every step is idempotent.
func (c *Client) invalidate() {
	if err := c.store.Clear(); err != nil {
		c.log.WithError(err).Error("failed to clear credential")
	}

	c.mu.Lock()
	hooks := append([]func(){}, c.onUnauthorize...)
	nav := c.nav
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	if nav != nil && nav.Location() != LoginPath {
		nav.Navigate(LoginPath)
	}
}

func errorField(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error
}

// doJSON sends req and decodes the reply into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.Path, err)
	}
	return nil
}
