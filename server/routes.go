package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// SESSION
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RouteSessionPrincipal, ChainMiddleware(s.UpdatePrincipalHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionReload, ChainMiddleware(s.ReloadPrincipalHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthNotices, ChainMiddleware(s.NoticesHandler(), s.APIMiddleware()...))

	// SOCIAL LOGIN
	s.RegisterRouteHandler("GET "+RouteOAuthStart, ChainMiddleware(s.OAuthStartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.APIMiddleware()...))

	// STORES
	s.RegisterRouteHandler("GET "+RouteMovieFilters, ChainMiddleware(s.FiltersHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RouteMovieFilters, ChainMiddleware(s.UpdateFiltersHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteMovieFilters, ChainMiddleware(s.ResetFiltersHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteRecommendations, ChainMiddleware(s.RecommendationsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteRecommendations, ChainMiddleware(s.SaveRecommendationsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOnboarding, ChainMiddleware(s.OnboardingHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOnboardingOTT, ChainMiddleware(s.ToggleOTTHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteOnboardingOTTs, ChainMiddleware(s.ClearOTTHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteOnboardingMovie, ChainMiddleware(s.AddLikedMovieHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteOnboardingMovie, ChainMiddleware(s.RemoveLikedMovieHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteOnboardingMovies, ChainMiddleware(s.ClearLikedMoviesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePlaygroundAPIKey, ChainMiddleware(s.PlaygroundKeyHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RoutePlaygroundAPIKey, ChainMiddleware(s.SavePlaygroundKeyHandler(), s.APIMiddleware()...))

	// BACKEND PASSTHROUGH
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		s.RegisterRouteHandler(method+" "+RouteAPIProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler(method+" "+RouteAuthProxy, ChainMiddleware(s.AuthProxyHandler(), s.APIMiddleware()...))
	}

	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metricsHandler())
}

func (s *Server) metricsHandler() http.Handler {
	g := s.gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
