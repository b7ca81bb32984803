package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-passthru-auth/auth"
	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/cache/memcache"
	"github.com/jrsteele09/go-passthru-auth/cache/rediscache"
	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/downstream"
	"github.com/jrsteele09/go-passthru-auth/downstream/downstreamfake"
	"github.com/jrsteele09/go-passthru-auth/internal/config"
	"github.com/jrsteele09/go-passthru-auth/internal/metrics"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
	"github.com/jrsteele09/go-passthru-auth/server"
	"github.com/jrsteele09/go-passthru-auth/service"
	"github.com/jrsteele09/go-passthru-auth/token"
	"github.com/jrsteele09/go-passthru-auth/workpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testExternalURL = "https://bridge.example/"
	testRedirectURI = "https://client.example/cb"
	downstreamCode  = "dcode123"
	downstreamToken = "tok-abc"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// recordingFactory remembers every handle it builds.
type recordingFactory struct {
	inner   service.Factory
	mu      sync.Mutex
	handles []*service.Handle
}

func (f *recordingFactory) NewHandle(ctx context.Context, creds service.Credentials) (*service.Handle, error) {
	h, err := f.inner.NewHandle(ctx, creds)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *recordingFactory) built() []*service.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*service.Handle(nil), f.handles...)
}

type testFixture struct {
	config     *config.Config
	tokens     *token.Manager
	downstream *downstreamfake.FakeProvider
	handles    *recordingFactory
	metrics    *metrics.Metrics
	server     *server.Server
	apiAuth    chan string
}

func testConfig() *config.Config {
	return &config.Config{
		ExternalURL: testExternalURL,
		IssuerURL:   testExternalURL,
		Secret:      testSecret,
		Port:        "8000",
		AppName:     "Passthru Auth",
		Env:         "TEST",
		Capability:  "calendar",
		Cors:        config.Cors{AllowedOrigins: config.ParseAllowedOrigins("*")},
		Downstream:  config.Downstream{Scopes: []string{"https://www.googleapis.com/auth/calendar"}},
	}
}

func setupTestFixture(t *testing.T, c cache.Cache) *testFixture {
	t.Helper()
	f := &testFixture{config: testConfig(), apiAuth: make(chan string, 10)}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiAuth <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `","query":"` + r.URL.RawQuery + `"}`))
	}))
	t.Cleanup(api.Close)

	if c == nil {
		c = memcache.New()
	}
	sealer, err := clients.NewSealer(testSecret)
	require.NoError(t, err)
	store, err := clients.NewDynamicStore(c, sealer)
	require.NoError(t, err)

	f.tokens, err = token.New(token.NewHMACSigner(testSecret), token.WithIssuer(f.config.Issuer()))
	require.NoError(t, err)

	f.downstream = downstreamfake.NewFakeProvider()
	f.downstream.AddCode(downstreamCode, &downstream.Token{
		AccessToken: downstreamToken,
		Expiry:      time.Now().Add(time.Hour),
		Subject:     "user-1",
	})

	f.metrics = metrics.New()
	pool, err := workpool.New(4, workpool.WithInFlightGauge(f.metrics.DownstreamCalls))
	require.NoError(t, err)

	provider, err := auth.NewPassthroughProvider(auth.Dependencies{
		Cache:      c,
		Clients:    store,
		Tokens:     f.tokens,
		Downstream: f.downstream,
		Pool:       pool,
	}, auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	httpFactory, err := service.NewHTTPFactory(api.URL+"/calendar/v3", pool, nil)
	require.NoError(t, err)
	f.handles = &recordingFactory{inner: httpFactory}

	f.server, err = server.New(f.config, server.Dependencies{
		Provider: provider,
		Tokens:   f.tokens,
		Handles:  f.handles,
		Metrics:  f.metrics,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) register(t *testing.T) oauthmodel.RegistrationResponse {
	t.Helper()
	body := `{"redirect_uris":["` + testRedirectURI + `"],"client_name":"test"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp oauthmodel.RegistrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// authorize runs /authorize and /redirect and returns the client redirect query.
func (f *testFixture) authorize(t *testing.T, clientID string) url.Values {
	t.Helper()
	q := url.Values{
		"client_id":     {clientID},
		"response_type": {"code"},
		"redirect_uri":  {testRedirectURI},
		"scope":         {"s"},
		"state":         {"xyz"},
	}
	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), downstreamfake.AuthURL))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cb := url.Values{"state": {state}, "code": {downstreamCode}}
	rec = f.do(httptest.NewRequest(http.MethodGet, server.RouteRedirect+"?"+cb.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	back, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client.example", back.Host)
	return back.Query()
}

func (f *testFixture) exchange(code string, client oauthmodel.RegistrationResponse) *httptest.ResponseRecorder {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
		"redirect_uri":  {testRedirectURI},
	}
	req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) oauthmodel.ErrorResponse {
	t.Helper()
	var resp oauthmodel.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestFullFlowOverHTTP(t *testing.T) {
	f := setupTestFixture(t, nil)
	client := f.register(t)
	assert.NotEmpty(t, client.ClientSecret)

	back := f.authorize(t, client.ClientID)
	assert.Equal(t, "xyz", back.Get("state"))
	code := back.Get("code")
	require.NotEmpty(t, code)

	rec := f.exchange(code, client)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var tokenResp oauthmodel.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokenResp))
	assert.Equal(t, "Bearer", tokenResp.TokenType)
	assert.Positive(t, tokenResp.ExpiresIn)

	claims, err := f.tokens.Verify(tokenResp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, downstreamToken, claims.Token)

	// the code is single use
	rec = f.exchange(code, client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, oauthmodel.ErrorInvalidGrant, decodeError(t, rec).Error)

	// the artifact opens the downstream API
	req := httptest.NewRequest(http.MethodGet, "/api/calendars/primary/events?maxResults=5", nil)
	req.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"path":"/calendar/v3/calendars/primary/events","query":"maxResults=5"}`, rec.Body.String())
	assert.Equal(t, "Bearer "+downstreamToken, <-f.apiAuth)

	handles := f.handles.built()
	require.Len(t, handles, 1)
	assert.True(t, handles[0].Released())
}

func TestAPIRequiresHandle(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/calendars/primary", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer resource_metadata="https://bridge.example/.well-known/oauth-protected-resource"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, oauthmodel.ErrorInvalidToken, decodeError(t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars/primary", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.handles.built())
}

func TestErrorMapping(t *testing.T) {
	f := setupTestFixture(t, nil)
	client := f.register(t)

	testCases := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "unknown state",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, server.RouteRedirect+"?state=bogus&code=x", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauthmodel.ErrorInvalidState,
		},
		{
			name: "unknown client",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?client_id=nobody&redirect_uri="+url.QueryEscape(testRedirectURI), nil)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   oauthmodel.ErrorInvalidClient,
		},
		{
			name: "unregistered redirect",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?client_id="+client.ClientID+"&redirect_uri=https%3A%2F%2Fevil.example%2F", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauthmodel.ErrorInvalidRequest,
		},
		{
			name: "unknown code",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader("grant_type=authorization_code&code=nope"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauthmodel.ErrorInvalidGrant,
		},
		{
			name: "unsupported grant",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader("grant_type=password&code=nope"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauthmodel.ErrorUnsupportedGrantType,
		},
		{
			name: "static register in dynamic mode",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, server.RouteStaticRegister, nil)
			},
			wantStatus: http.StatusForbidden,
			wantCode:   oauthmodel.ErrorRegistrationDisabled,
		},
		{
			name: "malformed registration",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader("{"))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauthmodel.ErrorInvalidClientMetadata,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(tc.req())
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		})
	}
}

func TestTokenRequiresClientCredentials(t *testing.T) {
	f := setupTestFixture(t, nil)
	client := f.register(t)

	code := f.authorize(t, client.ClientID).Get("code")
	req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(url.Values{"code": {code}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.Equal(t, oauthmodel.ErrorInvalidClient, decodeError(t, rec).Error)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	// client_secret_basic on a fresh code
	code = f.authorize(t, client.ClientID).Get("code")
	req = httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(url.Values{"grant_type": {"authorization_code"}, "code": {code}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(client.ClientID, client.ClientSecret)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	f := setupTestFixture(t, nil)
	client := f.register(t)
	f.downstream.FailWith(assert.AnError)

	q := url.Values{"client_id": {client.ClientID}, "redirect_uri": {testRedirectURI}}
	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	rec = f.do(httptest.NewRequest(http.MethodGet, server.RouteRedirect+"?code=x&state="+loc.Query().Get("state"), nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, oauthmodel.ErrorUpstreamExchangeFailed, resp.Error)
	assert.NotContains(t, resp.ErrorDescription, assert.AnError.Error())
}

func TestDownstreamErrorRedirect(t *testing.T) {
	f := setupTestFixture(t, nil)
	client := f.register(t)

	q := url.Values{"client_id": {client.ClientID}, "redirect_uri": {testRedirectURI}, "state": {"abc"}}
	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthorize+"?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	cb := url.Values{"state": {loc.Query().Get("state")}, "error": {"access_denied"}}
	rec = f.do(httptest.NewRequest(http.MethodGet, server.RouteRedirect+"?"+cb.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	back, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", back.Query().Get("error"))
	assert.Equal(t, "abc", back.Query().Get("state"))
	assert.Empty(t, f.downstream.Exchanges())
}

func TestMetadataEndpoints(t *testing.T) {
	f := setupTestFixture(t, nil)

	testCases := []struct {
		path  string
		check func(t *testing.T, doc map[string]any)
	}{
		{
			path: server.RouteWellKnownAuthorizationServer,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "https://bridge.example", doc["issuer"])
				assert.Equal(t, "https://bridge.example/authorize", doc["authorization_endpoint"])
				assert.Equal(t, "https://bridge.example/token", doc["token_endpoint"])
				assert.Equal(t, "https://bridge.example/register", doc["registration_endpoint"])
			},
		},
		{
			path: server.RouteWellKnownProtectedResource,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "https://bridge.example", doc["resource"])
				assert.Equal(t, []any{"https://bridge.example"}, doc["authorization_servers"])
			},
		},
		{
			path: server.RouteAgentCard,
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "Passthru Auth", doc["name"])
				assert.Equal(t, []any{"calendar"}, doc["capabilities"])
				assert.Equal(t, map[string]any{"registration_endpoint": "https://bridge.example/register"}, doc["endpoints"])
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
			var doc map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			tc.check(t, doc)
		})
	}
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, server.RouteAgentCard, nil)
	req.Header.Set("Origin", "https://app.example")
	rec := f.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Mcp-Session-Id", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, server.RouteToken, nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = f.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCorsRestrictedOrigins(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.config.Cors.AllowedOrigins = config.ParseAllowedOrigins("https://app.example")

	req := httptest.NewRequest(http.MethodGet, server.RouteAgentCard, nil)
	req.Header.Set("Origin", "https://app.example")
	rec := f.do(req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, server.RouteAgentCard, nil)
	req.Header.Set("Origin", "https://other.example")
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	f := setupTestFixture(t, rediscache.NewWithClient(client, "test:"))

	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = f.do(httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// flow endpoints fail closed with a retryable error
	rec = f.do(httptest.NewRequest(http.MethodGet, server.RouteRedirect+"?state=s&code=c", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, oauthmodel.ErrorTemporarilyUnavailable, decodeError(t, rec).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.register(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `passthru_http_requests_total{route="POST /register",status="201"} 1`)
	assert.Contains(t, body, `passthru_flow_results_total{result="ok",stage="register"} 1`)
	assert.Contains(t, body, `passthru_credential_checks_total{outcome="absent"} 1`)
}

func TestRoutesRegistered(t *testing.T) {
	f := setupTestFixture(t, nil)
	routes := f.server.Routes()
	for _, want := range []string{
		"POST " + server.RouteRegister,
		"POST " + server.RouteStaticRegister,
		"GET " + server.RouteAuthorize,
		"GET " + server.RouteRedirect,
		"POST " + server.RouteToken,
		"GET " + server.RouteWellKnownAuthorizationServer,
		"GET " + server.RouteWellKnownProtectedResource,
		"GET " + server.RouteAgentCard,
		"GET " + server.RouteHealth,
		"GET " + server.RouteMetrics,
	} {
		assert.Contains(t, routes, want)
	}
}

func TestStaticModeRegistration(t *testing.T) {
	sealer, err := clients.NewSealer(testSecret)
	require.NoError(t, err)
	store, err := clients.NewStaticStore(clients.Definitions{
		Capability: "calendar",
		Clients:    []*clients.Client{{ID: "static-1", Secret: "s3cret", RedirectURIs: []string{testRedirectURI}}},
	}, sealer)
	require.NoError(t, err)

	tokens, err := token.New(token.NewHMACSigner(testSecret))
	require.NoError(t, err)
	pool, err := workpool.New(1)
	require.NoError(t, err)
	provider, err := auth.NewPassthroughProvider(auth.Dependencies{
		Cache:      memcache.New(),
		Clients:    store,
		Tokens:     tokens,
		Downstream: downstreamfake.NewFakeProvider(),
		Pool:       pool,
	}, auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	factory, err := service.NewHTTPFactory("https://api.example", pool, nil)
	require.NoError(t, err)

	srv, err := server.New(testConfig(), server.Dependencies{Provider: provider, Tokens: tokens, Handles: factory, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for _, path := range []string{server.RouteRegister, server.RouteStaticRegister} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"redirect_uris":["https://x.example/cb"]}`)))
		require.Equal(t, http.StatusCreated, rec.Code, path)
		assert.JSONEq(t, `{"client_id":"static-1","client_secret":"s3cret","capability":"calendar"}`, rec.Body.String())
	}
}
