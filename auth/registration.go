package auth

import (
	"context"

	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
)

const defaultAuthMethod = "client_secret_post"

var supportedAuthMethods = map[string]struct{}{
	defaultAuthMethod:      {},
	"client_secret_basic":  {},
	clients.AuthMethodNone: {},
}

// Register performs dynamic client registration. In static mode it fails with
// ErrRegistrationDisabled.
func (p *PassthroughProvider) Register(ctx context.Context, req oauthmodel.RegistrationRequest) (*oauthmodel.RegistrationResponse, error) {
	if p.deps.Clients.Mode() == clients.ModeStatic {
		return nil, errors.ErrRegistrationDisabled
	}
	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = defaultAuthMethod
	}
	if _, ok := supportedAuthMethods[req.TokenEndpointAuthMethod]; !ok {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unsupported token_endpoint_auth_method %q", req.TokenEndpointAuthMethod)
	}
	for _, gt := range req.GrantTypes {
		if gt != string(oauthmodel.AuthorizationCodeGrant) {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "unsupported grant_type %q", gt)
		}
	}
	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []string{string(oauthmodel.AuthorizationCodeGrant)}
	}
	if len(req.ResponseTypes) == 0 {
		req.ResponseTypes = []string{string(oauthmodel.CodeResponseType)}
	}

	registered, err := p.deps.Clients.Register(ctx, &clients.Client{
		RedirectURIs:            req.RedirectURIs,
		Name:                    req.ClientName,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("client_id", registered.ID).Msg("client registered")
	return &oauthmodel.RegistrationResponse{
		ClientID:                registered.ID,
		ClientSecret:            registered.Secret,
		ClientIDIssuedAt:        registered.IssuedAt,
		RedirectURIs:            registered.RedirectURIs,
		ClientName:              registered.Name,
		TokenEndpointAuthMethod: registered.TokenEndpointAuthMethod,
		GrantTypes:              registered.GrantTypes,
		ResponseTypes:           registered.ResponseTypes,
		Scope:                   registered.Scope,
	}, nil
}

// StaticDescriptor returns the fixed client credentials handed out in static mode.
func (p *PassthroughProvider) StaticDescriptor() (clients.Descriptor, error) {
	d, ok := p.deps.Clients.(interface{ Descriptor() clients.Descriptor })
	if !ok {
		return clients.Descriptor{}, errors.Wrapf(errors.ErrRegistrationDisabled, "no static clients configured")
	}
	return d.Descriptor(), nil
}
