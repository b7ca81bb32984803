package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
	"github.com/jrsteele09/go-passthru-auth/service"
)

// Response headers copied from the downstream API.
var passthroughHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"}

// APIPassthrough forwards GET requests below /api/ to the downstream API with the
// credentials of the request's service handle.
func (s *Server) APIPassthrough() http.HandlerFunc {
	resourceMetadata := s.config.BaseURL() + RouteWellKnownProtectedResource
	return func(w http.ResponseWriter, r *http.Request) {
		handle, ok := service.FromContext(r.Context())
		if !ok {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata=%q`, resourceMetadata))
			writeJSONError(w, oauthmodel.ErrorInvalidToken, "a valid session artifact is required", http.StatusUnauthorized)
			return
		}

		resp, err := handle.Get(r.Context(), r.PathValue("path"), r.URL.RawQuery)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Warn().Err(err).Str("subject", handle.Subject()).Msg("downstream API call failed")
			writeJSONError(w, oauthmodel.ErrorServerError, "downstream API call failed", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for _, h := range passthroughHeaders {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.logger.Debug().Err(err).Msg("copying downstream response")
		}
	}
}
