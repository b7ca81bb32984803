package oauthmodel

// Error codes written in the "error" member of JSON error responses.
const (
	ErrorInvalidRequest         = "invalid_request"
	ErrorInvalidClient          = "invalid_client"
	ErrorInvalidGrant           = "invalid_grant"
	ErrorInvalidState           = "invalid_state"
	ErrorUnsupportedGrantType   = "unsupported_grant_type"
	ErrorUpstreamExchangeFailed = "upstream_exchange_failed"
	ErrorRegistrationDisabled   = "registration_disabled"
	ErrorInvalidToken           = "invalid_token"
	ErrorTemporarilyUnavailable = "temporarily_unavailable"
	ErrorServerError            = "server_error"
	ErrorInvalidClientMetadata  = "invalid_client_metadata"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
