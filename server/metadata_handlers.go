package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
)

const (
	metadataCacheControl = "public, max-age=3600" // Cache for 1 hour
	healthCheckTimeout   = 2 * time.Second
)

// AuthorizationServerMetadata serves the RFC 8414 discovery document
func (s *Server) AuthorizationServerMetadata() http.HandlerFunc {
	baseURL := s.config.BaseURL()
	resp := map[string]any{
		"issuer":                 s.config.Issuer(),
		"authorization_endpoint": baseURL + RouteAuthorize,
		"token_endpoint":         baseURL + RouteToken,
		"registration_endpoint":  baseURL + RouteRegister,

		"response_types_supported":         []string{string(oauthmodel.CodeResponseType)},
		"response_modes_supported":         []string{"query"},
		"grant_types_supported":            []string{string(oauthmodel.AuthorizationCodeGrant)},
		"code_challenge_methods_supported": []string{string(oauthmodel.CodeMethodTypeS256), string(oauthmodel.CodeMethodTypePlain)},

		// Token endpoint auth methods
		"token_endpoint_auth_methods_supported": []string{
			"client_secret_post",  // Credentials in POST body
			"client_secret_basic", // Credentials in the Authorization header
			"none",                // For public clients with PKCE
		},
		"scopes_supported": s.config.Downstream.Scopes,
	}
	return staticJSONHandler(resp)
}

// ProtectedResourceMetadata serves the RFC 9728 document for the /api/ passthrough.
func (s *Server) ProtectedResourceMetadata() http.HandlerFunc {
	resp := map[string]any{
		"resource":                 s.config.BaseURL(),
		"authorization_servers":    []string{s.config.Issuer()},
		"bearer_methods_supported": []string{"header"},
		"scopes_supported":         s.config.Downstream.Scopes,
	}
	return staticJSONHandler(resp)
}

// AgentCard describes the bridge to agent clients.
func (s *Server) AgentCard() http.HandlerFunc {
	resp := map[string]any{
		"id":           s.config.BaseURL(),
		"name":         s.config.AppName,
		"issuer":       s.config.Issuer(),
		"capabilities": []string{s.config.Capability},
		"endpoints": map[string]string{
			"registration_endpoint": s.config.BaseURL() + RouteRegister,
		},
	}
	return staticJSONHandler(resp)
}

// staticJSONHandler encodes body once at startup.
func staticJSONHandler(body any) http.HandlerFunc {
	encoded, err := json.Marshal(body)
	if err != nil {
		panic("encoding metadata document: " + err.Error())
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", metadataCacheControl)
		_, _ = w.Write(encoded)
	}
}

// Health reports whether the cache is reachable.
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		w.Header().Set("Cache-Control", "no-store")
		if err := s.provider.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			status := http.StatusInternalServerError
			if errors.Is(err, cache.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
