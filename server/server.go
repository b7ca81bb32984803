package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-passthru-auth/auth"
	"github.com/jrsteele09/go-passthru-auth/internal/config"
	"github.com/jrsteele09/go-passthru-auth/internal/metrics"
	"github.com/jrsteele09/go-passthru-auth/service"
	"github.com/jrsteele09/go-passthru-auth/token"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators the HTTP layer adapts.
type Dependencies struct {
	Provider *auth.PassthroughProvider
	Tokens   *token.Manager
	Handles  service.Factory
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type Server struct {
	mux      *http.ServeMux
	routes   []string
	config   *config.Config
	provider *auth.PassthroughProvider
	tokens   *token.Manager
	handles  service.Factory
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[server.New] nil config")
	}
	if deps.Provider == nil || deps.Tokens == nil || deps.Handles == nil {
		return nil, fmt.Errorf("[server.New] provider, token manager and handle factory are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		provider: deps.Provider,
		tokens:   deps.Tokens,
		handles:  deps.Handles,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
