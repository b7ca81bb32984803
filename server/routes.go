package server

func (s *Server) initRoutes() {
	// Registration
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.Register(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteStaticRegister, ChainMiddleware(s.StaticRegister(), s.APIMiddleware()...))

	// OAuth2 authorization code flow
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteRedirect, ChainMiddleware(s.DownstreamRedirect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))

	// Metadata
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthorizationServer, ChainMiddleware(s.AuthorizationServerMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource, ChainMiddleware(s.ProtectedResourceMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAgentCard, ChainMiddleware(s.AgentCard(), s.APIMiddleware()...))

	// Protected API (the credential middleware attaches the service handle)
	s.RegisterRouteHandler("GET "+RouteAPI, ChainMiddleware(s.APIPassthrough(), s.APIMiddleware()...))

	// CORS preflight for the browser facing routes
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.Preflight(), s.APIMiddleware()...))

	// Operational
	s.RegisterRouteFunc("GET "+RouteHealth, s.Health())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}
