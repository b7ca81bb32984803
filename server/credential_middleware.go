package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-passthru-auth/internal/metrics"
	"github.com/jrsteele09/go-passthru-auth/service"
)

// CredentialMiddleware turns a bearer session artifact into a service handle scoped to the
// request. Requests without credentials, or with credentials that fail verification, proceed
// anonymously; the middleware never rejects a request itself. The scope is released when the
// wrapped handler returns or panics.
func (s *Server) CredentialMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := service.NewScope()
		defer func() {
			if h, ok := scope.Handle(); ok && !h.Released() {
				s.metrics.HandlesReleased.Inc()
			}
			scope.Release()
		}()
		r = r.WithContext(service.WithScope(r.Context(), scope))

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.metrics.Credentials.WithLabelValues(metrics.CredentialAbsent).Inc()
			next(w, r)
			return
		}

		raw, ok := bearerToken(authHeader)
		if !ok {
			s.metrics.Credentials.WithLabelValues(metrics.CredentialInvalid).Inc()
			s.logger.Info().Str("path", r.URL.Path).Msg("ignoring non-bearer Authorization header")
			next(w, r)
			return
		}

		claims, err := s.tokens.Verify(raw)
		if err != nil {
			s.metrics.Credentials.WithLabelValues(metrics.CredentialInvalid).Inc()
			s.logger.Info().Err(err).Str("path", r.URL.Path).Msg("session artifact rejected")
			next(w, r)
			return
		}

		creds := service.Credentials{AccessToken: claims.Token, Subject: claims.Subject}
		if claims.ExpiresAt != nil {
			creds.Expiry = claims.ExpiresAt.Time
		}
		handle, err := s.handles.NewHandle(r.Context(), creds)
		if err != nil {
			s.metrics.Credentials.WithLabelValues(metrics.CredentialInvalid).Inc()
			s.logger.Warn().Err(err).Msg("building service handle")
			next(w, r)
			return
		}
		scope.Set(handle)
		s.metrics.Credentials.WithLabelValues(metrics.CredentialValid).Inc()
		next(w, r)
	}
}

// bearerToken extracts the credential of an "Authorization: Bearer <token>" header.
func bearerToken(authHeader string) (string, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
