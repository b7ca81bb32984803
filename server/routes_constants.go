package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Registration Routes
	RouteRegister       = "/register"
	RouteStaticRegister = "/static_register"

	// OAuth2 Routes
	RouteAuthorize = "/authorize"
	RouteRedirect  = "/redirect" // downstream provider callback
	RouteToken     = "/token"

	// Metadata Routes
	RouteWellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"
	RouteWellKnownProtectedResource   = "/.well-known/oauth-protected-resource"
	RouteAgentCard                    = "/.well_known/agent-card.json"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Protected downstream API passthrough
	RouteAPIPrefix = "/api/"
	RouteAPI       = RouteAPIPrefix + "{path...}"
)
