package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-passthru-auth/auth"
	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/cache/memcache"
	"github.com/jrsteele09/go-passthru-auth/cache/rediscache"
	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/downstream"
	"github.com/jrsteele09/go-passthru-auth/internal/config"
	"github.com/jrsteele09/go-passthru-auth/internal/metrics"
	"github.com/jrsteele09/go-passthru-auth/server"
	"github.com/jrsteele09/go-passthru-auth/service"
	"github.com/jrsteele09/go-passthru-auth/token"
	"github.com/jrsteele09/go-passthru-auth/workpool"
	"github.com/rs/zerolog"
)

const (
	memorySweepInterval = time.Minute
	downstreamTimeout   = 15 * time.Second
)

// App is the fully wired bridge.
type App struct {
	Handler http.Handler
	closers []func() error
}

// Close releases the backing connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{}

	backing, err := newCache(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	sealer, err := clients.NewSealer(cfg.Secret)
	if err != nil {
		return nil, err
	}
	var store clients.Store
	if cfg.StaticClients() {
		store, err = clients.LoadStaticStore(cfg.ClientsPath, sealer, cfg.Capability)
	} else {
		store, err = clients.NewDynamicStore(backing, sealer, clients.WithRecordTTL(cfg.OAuth.DynamicClientTTL))
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Str("mode", string(store.Mode())).Msg("client registration store ready")

	tokens, err := token.New(token.NewHMACSigner(cfg.Secret),
		token.WithIssuer(cfg.Issuer()),
		token.WithMaxLifetime(cfg.OAuth.SessionMaxLifetime),
	)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	pool, err := workpool.New(cfg.OAuth.WorkerPoolSize, workpool.WithInFlightGauge(m.DownstreamCalls))
	if err != nil {
		return nil, err
	}
	logger.Info().Int("size", pool.Size()).Msg("downstream worker pool ready")

	httpClient := &http.Client{Timeout: downstreamTimeout}
	google, err := downstream.NewGoogle(cfg.Downstream, cfg.BaseURL()+server.RouteRedirect,
		downstream.WithHTTPClient(httpClient),
		downstream.WithIDTokenVerifier(downstream.NewRemoteIDTokenVerifier(ctx, cfg.Downstream, httpClient)),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Downstream.ClientID == "" {
		logger.Warn().Msg("DOWNSTREAM_CLIENT_ID is empty, the downstream provider will reject authorizations")
	}

	provider, err := auth.NewPassthroughProvider(auth.Dependencies{
		Cache:      backing,
		Clients:    store,
		Tokens:     tokens,
		Downstream: google,
		Pool:       pool,
		Sealer:     sealer,
	},
		auth.WithLogger(logger.With().Str("component", "auth").Logger()),
		auth.WithPendingTTL(cfg.OAuth.PendingTTL),
		auth.WithCodeTTL(cfg.OAuth.CodeTTL),
	)
	if err != nil {
		return nil, err
	}

	handles, err := service.NewHTTPFactory(cfg.Downstream.APIURL, pool, nil)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(cfg, server.Dependencies{
		Provider: provider,
		Tokens:   tokens,
		Handles:  handles,
		Metrics:  m,
		Logger:   logger.With().Str("component", "http").Logger(),
	})
	if err != nil {
		return nil, err
	}
	app.Handler = srv
	return app, nil
}

// newCache selects the in-process cache for memory:// and Redis otherwise.
func newCache(ctx context.Context, cfg *config.Config, app *App) (cache.Cache, error) {
	if cfg.RedisURL == config.MemoryCacheURL {
		c := memcache.New()
		c.StartSweeper(ctx, memorySweepInterval)
		return c, nil
	}
	c, err := rediscache.New(ctx, cfg.RedisURL, "")
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, c.Close)
	return c, nil
}

// redactURL hides any password in a connection string.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
