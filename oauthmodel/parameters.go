package oauthmodel

import (
	"strings"

	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
)

// AuthorizationRequest holds parameters for the OAuth2 authorization request.
// These are received as query parameters at the /authorize endpoint.
type AuthorizationRequest struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Validated against: the Client Registration Store
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Required: No (defaults to "code", the only supported value)
	ResponseType ResponseType

	// RedirectURI is where the local authorization code will be sent.
	// Required: Yes
	// Security: Must exactly match a registered URI to prevent open redirects
	RedirectURI string

	// Scope specifies the permissions being requested.
	// Required: No
	// Example: "calendar"
	// Carried into the session artifact as-is; the downstream scope set is fixed by configuration.
	Scope string

	// State is an opaque value the client uses to correlate the callback.
	// Required: Recommended (CSRF protection)
	// Echoed back unchanged on the final redirect to the client.
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required: Yes for public clients
	// Length: 43 to 128 characters
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Required: Yes if code_challenge is provided
	// Default: "plain" if not specified (S256 strongly recommended)
	CodeChallengeMethod CodeMethodType
}

const (
	minCodeChallengeLength = 43
	maxCodeChallengeLength = 128
)

// Normalize fills defaults for optional fields.
func (p *AuthorizationRequest) Normalize() {
	if strings.TrimSpace(string(p.ResponseType)) == "" {
		p.ResponseType = CodeResponseType
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod == "" {
		p.CodeChallengeMethod = CodeMethodTypePlain
	}
}

// ValidateWithClient validates the request against the registered client.
func (p *AuthorizationRequest) ValidateWithClient(client *clients.Client) error {
	if !client.HasRedirectURI(p.RedirectURI) {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri %q is not registered for client %s", p.RedirectURI, client.ID)
	}
	if p.ResponseType != CodeResponseType {
		return errors.Wrapf(errors.ErrInvalidRequest, "unsupported response_type %q", p.ResponseType)
	}
	if err := validateCodeChallenge(p.CodeChallenge, p.CodeChallengeMethod); err != nil {
		return err
	}
	if client.IsPublic() && p.CodeChallenge == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "PKCE is required for public clients")
	}
	return nil
}

func validateCodeChallenge(codeChallenge string, method CodeMethodType) error {
	if codeChallenge == "" {
		if method != "" {
			return errors.Wrapf(errors.ErrInvalidRequest, "code_challenge_method without code_challenge")
		}
		return nil
	}
	if len(codeChallenge) < minCodeChallengeLength || len(codeChallenge) > maxCodeChallengeLength {
		return errors.Wrapf(errors.ErrInvalidRequest, "code_challenge length must be between %d and %d characters", minCodeChallengeLength, maxCodeChallengeLength)
	}
	switch method {
	case CodeMethodTypeS256, CodeMethodTypePlain:
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidRequest, "unsupported code_challenge_method %q", method)
}
