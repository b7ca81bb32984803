package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/downstream"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
	"github.com/jrsteele09/go-passthru-auth/token"
)

// StartAuthorization validates the request, records it as pending and returns
// the downstream authorization URL the user agent should be sent to.
func (p *PassthroughProvider) StartAuthorization(ctx context.Context, req oauthmodel.AuthorizationRequest) (string, error) {
	req.Normalize()
	if strings.TrimSpace(req.ClientID) == "" {
		return "", errors.Wrapf(errors.ErrInvalidClient, "missing client_id")
	}
	client, err := p.deps.Clients.Lookup(ctx, req.ClientID)
	if err != nil {
		return "", err
	}
	if err := req.ValidateWithClient(client); err != nil {
		return "", err
	}

	state, err := generateRandomString(stateTokenLength)
	if err != nil {
		return "", err
	}
	pending := PendingAuthorization{
		ClientID:            client.ID,
		Scope:               req.Scope,
		RedirectURI:         req.RedirectURI,
		ClientState:         req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           p.nowTime(),
	}
	if p.downstreamPKCE {
		pending.DownstreamVerifier = downstream.GenerateVerifier()
	}
	if err := p.putRecord(ctx, pendingKey(state), &pending, p.pendingTTL); err != nil {
		return "", errors.Wrapf(err, "[StartAuthorization] storing pending state")
	}

	p.logger.Debug().Str("client_id", client.ID).Msg("authorization started")
	return p.deps.Downstream.AuthCodeURL(state, pending.DownstreamVerifier), nil
}

// HandleDownstreamCallback consumes the pending state, exchanges the downstream
// code, mints a session artifact and returns the client redirect carrying a
// fresh local code.
func (p *PassthroughProvider) HandleDownstreamCallback(ctx context.Context, state, code string) (string, error) {
	pending, err := p.takePending(ctx, state)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", errors.Wrapf(errors.ErrUpstreamExchangeFailed, "downstream callback without code")
	}

	var tok *downstream.Token
	err = p.deps.Pool.Do(ctx, func(ctx context.Context) error {
		var exchangeErr error
		tok, exchangeErr = p.deps.Downstream.Exchange(ctx, code, pending.DownstreamVerifier)
		return exchangeErr
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("client_id", pending.ClientID).Msg("downstream exchange failed")
		return "", errors.Mark(err, errors.ErrUpstreamExchangeFailed)
	}

	session, err := p.deps.Tokens.Mint(token.SessionInput{
		DownstreamToken:  tok.AccessToken,
		DownstreamExpiry: tok.Expiry,
		ClientID:         pending.ClientID,
		Subject:          tok.Subject,
		Scope:            pending.Scope,
	})
	if err != nil {
		return "", errors.Mark(err, errors.ErrUpstreamExchangeFailed)
	}

	localCode, err := generateRandomString(localCodeLength)
	if err != nil {
		return "", err
	}
	issued := IssuedCode{
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		Scope:               pending.Scope,
		Artifact:            session.Artifact,
		ArtifactExpiresAt:   session.ExpiresAt,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		CreatedAt:           p.nowTime(),
	}
	if err := p.putRecord(ctx, codeKey(localCode), &issued, p.codeTTL); err != nil {
		return "", errors.Wrapf(err, "[HandleDownstreamCallback] storing issued code")
	}

	p.logger.Info().Str("client_id", pending.ClientID).Msg("local authorization code issued")
	return clientRedirect(pending.RedirectURI, url.Values{
		"code":  {localCode},
		"state": {pending.ClientState},
	})
}

// HandleDownstreamError consumes the pending state after the downstream provider
// refused the authorization and returns the client redirect carrying the error.
func (p *PassthroughProvider) HandleDownstreamError(ctx context.Context, state, errorCode, description string) (string, error) {
	pending, err := p.takePending(ctx, state)
	if err != nil {
		return "", err
	}
	if errorCode == "" {
		errorCode = "access_denied"
	}
	p.logger.Info().Str("client_id", pending.ClientID).Str("error", errorCode).Msg("downstream authorization refused")
	params := url.Values{"error": {errorCode}, "state": {pending.ClientState}}
	if description != "" {
		params.Set("error_description", description)
	}
	return clientRedirect(pending.RedirectURI, params)
}

// ExchangeCodeForToken redeems a local code exactly once for its session artifact.
func (p *PassthroughProvider) ExchangeCodeForToken(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if req.GrantType != "" && req.GrantType != oauthmodel.AuthorizationCodeGrant {
		return nil, errors.Wrapf(errors.ErrUnsupportedGrantType, "grant_type %q", req.GrantType)
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "missing code")
	}

	var issued IssuedCode
	if err := p.takeRecord(ctx, codeKey(req.Code), &issued); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrInvalidGrant, "unknown, expired or already used code")
		}
		return nil, errors.Wrapf(err, "[ExchangeCodeForToken] loading code")
	}

	now := p.nowTime()
	if now.After(issued.CreatedAt.Add(p.codeTTL)) {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "code expired")
	}
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "missing client_id")
	}
	if req.ClientID != issued.ClientID {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "code was not issued to client %s", req.ClientID)
	}
	if req.RedirectURI != "" && req.RedirectURI != issued.RedirectURI {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "redirect_uri mismatch")
	}
	// Public clients pass with an empty secret; confidential ones must present theirs.
	if err := p.deps.Clients.ValidateSecret(ctx, issued.ClientID, req.ClientSecret); err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidClient)
	}
	if !checkCodeChallenge(issued.CodeChallenge, req.CodeVerifier, issued.CodeChallengeMethod) {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "PKCE verification failed")
	}

	expiresIn := int64(issued.ArtifactExpiresAt.Sub(now).Seconds())
	if expiresIn <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidGrant, "session artifact already expired")
	}

	p.logger.Info().Str("client_id", issued.ClientID).Msg("session artifact issued")
	return &oauthmodel.TokenResponse{
		AccessToken: issued.Artifact,
		TokenType:   oauthmodel.TokenTypeBearer,
		ExpiresIn:   expiresIn,
		Scope:       issued.Scope,
	}, nil
}

func (p *PassthroughProvider) takePending(ctx context.Context, state string) (*PendingAuthorization, error) {
	if strings.TrimSpace(state) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidState, "missing state")
	}
	var pending PendingAuthorization
	if err := p.takeRecord(ctx, pendingKey(state), &pending); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrInvalidState, "unknown, expired or already used state")
		}
		return nil, errors.Wrapf(err, "[auth.takePending]")
	}
	if p.nowTime().After(pending.CreatedAt.Add(p.pendingTTL)) {
		return nil, errors.Wrapf(errors.ErrInvalidState, "state expired")
	}
	return &pending, nil
}

func clientRedirect(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidRedirectURI, "parsing %q", redirectURI)
	}
	q := u.Query()
	for k, vs := range params {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		q.Set(k, vs[0])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func checkCodeChallenge(storedChallenge, verifier string, method oauthmodel.CodeMethodType) bool {
	if storedChallenge == "" { // No PKCE code challenge
		return true
	}
	if verifier == "" {
		return false
	}
	switch method {
	case oauthmodel.CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
	case oauthmodel.CodeMethodTypePlain, "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(storedChallenge)) == 1
	}
	return false
}
