package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/downstream"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/token"
	"github.com/jrsteele09/go-passthru-auth/workpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultPendingTTL = 10 * time.Minute
	defaultCodeTTL    = 5 * time.Minute
)

// Dependencies holds the collaborators of the PassthroughProvider
type Dependencies struct {
	Cache      cache.Cache         // pending states and issued local codes
	Clients    clients.Store       // client registrations
	Tokens     *token.Manager      // session artifact minting
	Downstream downstream.Provider // the identity provider the flow is delegated to
	Pool       *workpool.Pool      // bounds concurrent downstream exchanges
	Sealer     *clients.Sealer     // optional, encrypts flow records at rest
}

// PassthroughProvider runs the authorization code flow against a downstream
// provider and issues its own local codes and session artifacts.
type PassthroughProvider struct {
	deps           Dependencies
	pendingTTL     time.Duration
	codeTTL        time.Duration
	downstreamPKCE bool
	logger         zerolog.Logger
	nowTime        func() time.Time
}

// ProviderOption defines a function type to modify the PassthroughProvider instance.
type ProviderOption func(*PassthroughProvider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProviderOption {
	return func(p *PassthroughProvider) {
		p.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *PassthroughProvider) {
		p.logger = logger
	}
}

// WithPendingTTL sets how long a started authorization waits for the downstream callback.
func WithPendingTTL(ttl time.Duration) ProviderOption {
	return func(p *PassthroughProvider) {
		p.pendingTTL = ttl
	}
}

// WithCodeTTL sets how long an issued local code can be redeemed.
func WithCodeTTL(ttl time.Duration) ProviderOption {
	return func(p *PassthroughProvider) {
		p.codeTTL = ttl
	}
}

// WithDownstreamPKCE toggles PKCE on the downstream leg. Enabled by default.
func WithDownstreamPKCE(enabled bool) ProviderOption {
	return func(p *PassthroughProvider) {
		p.downstreamPKCE = enabled
	}
}

// NewPassthroughProvider validates the required dependencies and applies options.
func NewPassthroughProvider(deps Dependencies, options ...ProviderOption) (*PassthroughProvider, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("[NewPassthroughProvider] cache is required")
	}
	if deps.Clients == nil {
		return nil, fmt.Errorf("[NewPassthroughProvider] client store is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("[NewPassthroughProvider] token manager is required")
	}
	if deps.Downstream == nil {
		return nil, fmt.Errorf("[NewPassthroughProvider] downstream provider is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("[NewPassthroughProvider] worker pool is required")
	}

	p := &PassthroughProvider{
		deps:           deps,
		pendingTTL:     defaultPendingTTL,
		codeTTL:        defaultCodeTTL,
		downstreamPKCE: true,
		logger:         log.Logger,
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Mode reports whether clients are registered statically or dynamically.
func (p *PassthroughProvider) Mode() clients.Mode {
	return p.deps.Clients.Mode()
}

// Lookup returns a registered client with its secret redacted.
func (p *PassthroughProvider) Lookup(ctx context.Context, clientID string) (*clients.Client, error) {
	return p.deps.Clients.Lookup(ctx, clientID)
}

// Ping checks the backing cache.
func (p *PassthroughProvider) Ping(ctx context.Context) error {
	if err := p.deps.Cache.Ping(ctx); err != nil {
		return errors.Wrapf(err, "[PassthroughProvider.Ping]")
	}
	return nil
}
