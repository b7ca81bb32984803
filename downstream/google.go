// Package downstream talks to the identity provider the bridge delegates
// authorization to.
package downstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-passthru-auth/internal/config"
	"golang.org/x/oauth2"
)

// Token is the result of a successful downstream code exchange.
type Token struct {
	AccessToken string
	Expiry      time.Time // zero if the provider gave no expiry
	Scope       string
	Subject     string // set when an ID token was returned and verified
}

// Provider is the downstream half of the authorization flow.
type Provider interface {
	// AuthCodeURL builds the downstream authorization URL carrying state.
	// verifier is the downstream PKCE verifier; empty disables PKCE.
	AuthCodeURL(state, verifier string) string
	// Exchange redeems a downstream authorization code.
	Exchange(ctx context.Context, code, verifier string) (*Token, error)
}

// GenerateVerifier returns a fresh downstream PKCE verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// Google is a Provider backed by Google's OAuth2 endpoints.
type Google struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
}

var _ Provider = (*Google)(nil)

type Option func(*Google)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Google) {
		g.httpClient = c
	}
}

// WithIDTokenVerifier verifies any id_token returned alongside the access token.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) Option {
	return func(g *Google) {
		g.verifier = v
	}
}

// NewGoogle builds the provider. redirectURL is the bridge's own callback.
func NewGoogle(cfg config.Downstream, redirectURL string, opts ...Option) (*Google, error) {
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("[downstream.NewGoogle] auth and token URLs are required")
	}
	g := &Google{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewRemoteIDTokenVerifier verifies ID tokens against the provider's published keys.
func NewRemoteIDTokenVerifier(ctx context.Context, cfg config.Downstream, httpClient *http.Client) *oidc.IDTokenVerifier {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	return oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID})
}

func (g *Google) AuthCodeURL(state, verifier string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return g.oauth2Config.AuthCodeURL(state, opts...)
}

func (g *Google) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("[Google.Exchange] empty code")
	}
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := g.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Google.Exchange] token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("[Google.Exchange] response carried no access token")
	}

	result := &Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}
	if scope, ok := tok.Extra("scope").(string); ok {
		result.Scope = scope
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" || g.verifier == nil {
		return result, nil
	}
	if g.httpClient != nil {
		ctx = oidc.ClientContext(ctx, g.httpClient)
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[Google.Exchange] ID token verification failed: %w", err)
	}
	result.Subject = idToken.Subject
	return result, nil
}
