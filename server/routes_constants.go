package server

// Route path constants
const (
	// Session lifecycle
	RouteAuthLogin        = "/auth/login"
	RouteAuthLogout       = "/auth/logout"
	RouteAuthSession      = "/auth/session"
	RouteSessionPrincipal = "/auth/session/principal"
	RouteSessionReload    = "/auth/session/reload"
	RouteAuthNotices      = "/auth/notices"

	// Social login (console)
	RouteOAuthStart    = "/auth/{provider}/start"
	RouteOAuthCallback = "/auth/{provider}/callback"

	// Backend passthrough
	RouteAPIProxy  = "/api/{path...}"
	RouteAuthProxy = "/auth-api/{path...}"

	// Dependent stores
	RouteMovieFilters     = "/stores/movies/filters"
	RouteRecommendations  = "/stores/movies/recommendations"
	RouteOnboarding       = "/stores/onboarding"
	RouteOnboardingOTTs   = "/stores/onboarding/ott"
	RouteOnboardingOTT    = "/stores/onboarding/ott/{id}"
	RouteOnboardingMovies = "/stores/onboarding/movies"
	RouteOnboardingMovie  = "/stores/onboarding/movies/{id}"
	RoutePlaygroundAPIKey = "/stores/playground/key"

	// UI shell targets
	RouteLoginPage = "/login"
	RouteDashboard = "/dashboard"
	RouteErrorView = "/error/"

	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	// headerTenant selects the tenant explicitly, overriding the Host subdomain
	headerTenant = "X-Tenant"
	// headerSkipErrorRedirect opts a proxied request out of the error views
	headerSkipErrorRedirect = "X-Skip-Error-Redirect"
)
