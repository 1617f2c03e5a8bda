package server

import (
	"net/http"
	"strconv"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/rs/zerolog/log"
)

// OAuthStartHandler redirects to the provider's consent page. The tenant must
// accept social logins.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		provider := r.PathValue("provider")
		if s.oauth == nil || !rt.Tenant.SupportsOAuth() {
			writeJSONError(w, "social login is not available for "+rt.Tenant.ID, http.StatusNotFound)
			return
		}

		rememberMe, _ := strconv.ParseBool(r.URL.Query().Get("remember_me"))
		returnURL := safeReturnURL(r.URL.Query().Get("return_url"))
		authURL, err := s.oauth.Start(r.Context(), rt.Tenant.ID, provider, returnURL, rememberMe)
		if err != nil {
			writeAppError(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	})
}

// OAuthCallbackHandler completes a social login. Cancellation, a missing code and
// backend rejections all send the browser back to the login page with a message.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		if s.oauth == nil {
			writeJSONError(w, "social login is not configured", http.StatusNotFound)
			return
		}

		flow, code, err := s.oauth.Complete(provider, r.URL.Query())
		switch {
		case apperrors.Is(err, apperrors.ErrOAuthDenied):
			redirectWithError(w, r, RouteLoginPage, provider+" login was cancelled")
			return
		case apperrors.Is(err, apperrors.ErrMissingCode):
			redirectWithError(w, r, RouteLoginPage, "missing authorization code")
			return
		case err != nil:
			log.Warn().Err(err).Str("provider", provider).Msg("rejected oauth callback")
			redirectWithError(w, r, RouteLoginPage, "invalid login attempt, please try again")
			return
		}

		rt, err := s.runtimeFor(flow.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		_, err = rt.Manager.LoginWithOAuth(r.Context(), provider, code, flow.RedirectURI, sessions.ModeFor(flow.RememberMe))
		if err != nil {
			log.Warn().Err(err).Str("tenant", flow.TenantID).Str("provider", provider).Msg("oauth login failed")
			redirectWithError(w, r, RouteLoginPage, provider+" login failed")
			return
		}
		http.Redirect(w, r, safeReturnURL(flow.ReturnURL), http.StatusFound)
	}
}
