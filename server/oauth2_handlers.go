package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/internal/metrics"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	maxRegistrationBody = 64 << 10
	resultOK            = "ok"
)

// Register performs RFC 7591 dynamic registration, or hands out the static descriptor when
// clients come from a definitions file.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.provider.Mode() == clients.ModeStatic {
			s.writeStaticDescriptor(w)
			return
		}

		var req oauthmodel.RegistrationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBody)).Decode(&req); err != nil {
			s.metrics.FlowResults.WithLabelValues(metrics.StageRegister, oauthmodel.ErrorInvalidClientMetadata).Inc()
			w.Header().Set("Cache-Control", "no-store")
			writeJSONError(w, oauthmodel.ErrorInvalidClientMetadata, "request body must be a JSON client metadata document", http.StatusBadRequest)
			return
		}

		resp, err := s.provider.Register(r.Context(), req)
		if err != nil {
			s.writeError(w, metrics.StageRegister, err)
			return
		}
		s.metrics.FlowResults.WithLabelValues(metrics.StageRegister, resultOK).Inc()
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusCreated, resp)
	}
}

// StaticRegister always answers with the static descriptor.
func (s *Server) StaticRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeStaticDescriptor(w)
	}
}

func (s *Server) writeStaticDescriptor(w http.ResponseWriter) {
	d, err := s.provider.StaticDescriptor()
	if err != nil {
		s.writeError(w, metrics.StageRegister, err)
		return
	}
	s.metrics.FlowResults.WithLabelValues(metrics.StageRegister, resultOK).Inc()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, d)
}

// Authorize starts the flow and sends the user agent to the downstream provider.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		downstreamURL, err := s.provider.StartAuthorization(r.Context(), parseAuthorizationRequest(r))
		if err != nil {
			s.writeError(w, metrics.StageAuthorize, err)
			return
		}
		s.metrics.FlowResults.WithLabelValues(metrics.StageAuthorize, resultOK).Inc()
		http.Redirect(w, r, downstreamURL, http.StatusFound)
	}
}

// DownstreamRedirect receives the downstream provider callback and sends the user agent
// back to the client with a local code, or with the downstream error.
func (s *Server) DownstreamRedirect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var (
			clientURL string
			err       error
		)
		if downstreamErr := q.Get("error"); downstreamErr != "" {
			clientURL, err = s.provider.HandleDownstreamError(r.Context(), q.Get("state"), downstreamErr, q.Get("error_description"))
		} else {
			clientURL, err = s.provider.HandleDownstreamCallback(r.Context(), q.Get("state"), q.Get("code"))
		}
		if err != nil {
			s.writeError(w, metrics.StageCallback, err)
			return
		}
		s.metrics.FlowResults.WithLabelValues(metrics.StageCallback, resultOK).Inc()
		http.Redirect(w, r, clientURL, http.StatusFound)
	}
}

// Token exchanges a local code for the session artifact.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Parse token request from form data
		if err := r.ParseForm(); err != nil {
			s.metrics.FlowResults.WithLabelValues(metrics.StageExchange, oauthmodel.ErrorInvalidRequest).Inc()
			w.Header().Set("Cache-Control", "no-store")
			writeJSONError(w, oauthmodel.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := oauthmodel.TokenRequest{
			GrantType:    oauthmodel.GrantType(r.PostFormValue("grant_type")),
			ClientID:     r.PostFormValue("client_id"),
			ClientSecret: r.PostFormValue("client_secret"),
			Code:         r.PostFormValue("code"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
			CodeVerifier: r.PostFormValue("code_verifier"),
		}
		// client_secret_basic
		if id, secret, ok := r.BasicAuth(); ok {
			tokenReq.ClientID, tokenReq.ClientSecret = id, secret
		}

		tokenResponse, err := s.provider.ExchangeCodeForToken(r.Context(), tokenReq)
		if err != nil {
			s.writeError(w, metrics.StageExchange, err)
			return
		}
		s.metrics.FlowResults.WithLabelValues(metrics.StageExchange, resultOK).Inc()

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenResponse)
	}
}

// parseAuthorizationRequest extracts OAuth2 authorization parameters from the query string
func parseAuthorizationRequest(r *http.Request) oauthmodel.AuthorizationRequest {
	q := r.URL.Query()
	return oauthmodel.AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		ResponseType:        oauthmodel.ResponseType(q.Get("response_type")),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: oauthmodel.CodeMethodType(q.Get("code_challenge_method")),
	}
}

// errorStatus maps an error kind to its stable error code and HTTP status.
func errorStatus(err error) (string, int) {
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		return oauthmodel.ErrorTemporarilyUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrUpstreamExchangeFailed):
		return oauthmodel.ErrorUpstreamExchangeFailed, http.StatusBadGateway
	case errors.Is(err, errors.ErrInvalidClient), errors.Is(err, errors.ErrInvalidClientSecret):
		return oauthmodel.ErrorInvalidClient, http.StatusUnauthorized
	case errors.Is(err, errors.ErrInvalidRedirectURI), errors.Is(err, errors.ErrInvalidRequest):
		return oauthmodel.ErrorInvalidRequest, http.StatusBadRequest
	case errors.Is(err, errors.ErrInvalidState):
		return oauthmodel.ErrorInvalidState, http.StatusBadRequest
	case errors.Is(err, errors.ErrInvalidGrant):
		return oauthmodel.ErrorInvalidGrant, http.StatusBadRequest
	case errors.Is(err, errors.ErrUnsupportedGrantType):
		return oauthmodel.ErrorUnsupportedGrantType, http.StatusBadRequest
	case errors.Is(err, errors.ErrRegistrationDisabled):
		return oauthmodel.ErrorRegistrationDisabled, http.StatusForbidden
	}
	return oauthmodel.ErrorServerError, http.StatusInternalServerError
}

var serverErrorDescriptions = map[int]string{
	http.StatusInternalServerError: "internal error",
	http.StatusBadGateway:          "downstream token exchange failed",
	http.StatusServiceUnavailable:  "backing store unavailable, retry later",
}

// writeError logs err, counts it against stage and writes the JSON error body. Internal
// failures are reported without detail.
func (s *Server) writeError(w http.ResponseWriter, stage string, err error) {
	code, status := errorStatus(err)
	s.metrics.FlowResults.WithLabelValues(stage, code).Inc()

	description := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("stage", stage).Str("error_code", code).Msg("request failed")
		description = serverErrorDescriptions[status]
	} else {
		s.logger.Info().Err(err).Str("stage", stage).Str("error_code", code).Msg("request rejected")
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="OAuth2 Client Authentication"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONError(w, code, description, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauthmodel.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
