// Package service provides the downstream API handle that is attached to a
// single authenticated request.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-passthru-auth/workpool"
	"golang.org/x/oauth2"
)

// ErrReleased is returned by a Handle used after its request finished.
var ErrReleased = errors.New("service handle released")

// Handle is an authenticated client for the downstream API. It is valid only
// until Release is called.
type Handle struct {
	client   *http.Client
	baseURL  *url.URL
	pool     *workpool.Pool
	subject  string
	released atomic.Bool
}

// Subject is the downstream user the handle acts for, if known.
func (h *Handle) Subject() string {
	return h.subject
}

// Do sends req through the bounded pool using the downstream credentials.
// The caller owns the response body.
func (h *Handle) Do(req *http.Request) (*http.Response, error) {
	if h.released.Load() {
		return nil, ErrReleased
	}
	var resp *http.Response
	err := h.pool.Do(req.Context(), func(ctx context.Context) error {
		var err error
		resp, err = h.client.Do(req.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// NewRequest builds a request for path relative to the downstream API base URL.
func (h *Handle) NewRequest(ctx context.Context, method, path, rawQuery string, body io.Reader) (*http.Request, error) {
	u := *h.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = rawQuery
	return http.NewRequestWithContext(ctx, method, u.String(), body)
}

// Get is a convenience wrapper around NewRequest and Do.
func (h *Handle) Get(ctx context.Context, path, rawQuery string) (*http.Response, error) {
	req, err := h.NewRequest(ctx, http.MethodGet, path, rawQuery, nil)
	if err != nil {
		return nil, err
	}
	return h.Do(req)
}

// Release invalidates the handle. It is safe to call more than once.
func (h *Handle) Release() {
	h.released.Store(true)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Credentials is what a verified session artifact yields.
type Credentials struct {
	AccessToken string
	Expiry      time.Time
	Subject     string
}

// Factory builds a Handle for one request.
type Factory interface {
	NewHandle(ctx context.Context, creds Credentials) (*Handle, error)
}

// HTTPFactory builds handles that call a REST API at BaseURL.
type HTTPFactory struct {
	baseURL   *url.URL
	pool      *workpool.Pool
	transport http.RoundTripper
}

var _ Factory = (*HTTPFactory)(nil)

// NewHTTPFactory validates baseURL. transport may be nil to use the default.
func NewHTTPFactory(baseURL string, pool *workpool.Pool, transport http.RoundTripper) (*HTTPFactory, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[service.NewHTTPFactory] invalid base URL %q", baseURL)
	}
	if pool == nil {
		return nil, fmt.Errorf("[service.NewHTTPFactory] nil pool")
	}
	return &HTTPFactory{baseURL: u, pool: pool, transport: transport}, nil
}

func (f *HTTPFactory) NewHandle(ctx context.Context, creds Credentials) (*Handle, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("[HTTPFactory.NewHandle] empty access token")
	}
	base := f.transport
	if base == nil {
		base = http.DefaultTransport
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Expiry:      creds.Expiry,
	})
	client := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
		Timeout:   30 * time.Second,
	}
	return &Handle{client: client, baseURL: f.baseURL, pool: f.pool, subject: creds.Subject}, nil
}
