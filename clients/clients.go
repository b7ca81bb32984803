package clients

import (
	"net/url"
	"slices"
	"strings"

	"github.com/jrsteele09/go-passthru-auth/internal/errors"
)

type Mode string

const (
	ModeStatic  Mode = "static"  // pre-provisioned by the operator
	ModeDynamic Mode = "dynamic" // created through the registration endpoint
)

// AuthMethodNone marks a public client that authenticates with PKCE only.
const AuthMethodNone = "none"

type Client struct {
	ID                      string   `json:"client_id" yaml:"client_id"`
	Secret                  string   `json:"client_secret,omitempty" yaml:"client_secret"`
	SecretRef               string   `json:"-" yaml:"-"`
	RedirectURIs            []string `json:"redirect_uris" yaml:"redirect_uris"`
	Mode                    Mode     `json:"registration_mode" yaml:"-"`
	Name                    string   `json:"client_name,omitempty" yaml:"client_name"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty" yaml:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types,omitempty" yaml:"grant_types"`
	ResponseTypes           []string `json:"response_types,omitempty" yaml:"response_types"`
	Scope                   string   `json:"scope,omitempty" yaml:"scope"`
	IssuedAt                int64    `json:"client_id_issued_at,omitempty" yaml:"-"`
}

// IsPublic returns true if the client has no secret to present at the token endpoint
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// Redacted returns a copy safe to hand to lookup callers.
func (c *Client) Redacted() *Client {
	cp := *c
	cp.Secret = ""
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	cp.ResponseTypes = slices.Clone(c.ResponseTypes)
	return &cp
}

// ValidateRedirectURIs checks that at least one URI is present and that each is
// an absolute URI without a fragment.
func ValidateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "at least one redirect_uri is required")
	}
	for _, raw := range uris {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Fragment != "" {
			return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri %q", raw)
		}
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
			return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri %q has no host", raw)
		}
	}
	return nil
}
