package oauthmodel

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the /token endpoint.
type TokenRequest struct {
	// GrantType must be "authorization_code".
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: No, but must match the code's client when present
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Security: Never log or expose this value
	ClientSecret string

	// Code is the local authorization code received on the client's redirect URI.
	// Usage: Exchanged once, then becomes invalid
	Code string

	// RedirectURI must match the redirect_uri of the authorization request when present.
	RedirectURI string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Validation: Server compares SHA256(code_verifier) with stored code_challenge
	CodeVerifier string
}

// TokenResponse is the token endpoint answer as defined in RFC 6749 section 5.1.
type TokenResponse struct {
	// AccessToken is the session artifact.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the artifact.
	// Note: bounded by the downstream token's own expiry
	ExpiresIn int64 `json:"expires_in"`

	// Scope is the scope requested at /authorize.
	Scope string `json:"scope,omitempty"`
}
