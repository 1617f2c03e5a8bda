package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Movigation/moviesir-session/authapi"
	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/users"
	"github.com/rs/zerolog/log"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// SessionView is what the shell learns about the current session. Tokens never
// leave the gateway.
type SessionView struct {
	Authenticated     bool            `json:"authenticated"`
	TenantID          string          `json:"tenant_id"`
	Principal         users.Principal `json:"principal,omitempty"`
	Mode              sessions.Mode   `json:"mode,omitempty"`
	LoginTime         *time.Time      `json:"login_time,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	AccessTokenExpiry *time.Time      `json:"access_token_expiry,omitempty"`
}

func sessionView(rt *Runtime) SessionView {
	view := SessionView{TenantID: rt.Tenant.ID}
	s, ok := rt.Manager.Current()
	if !ok {
		return view
	}
	view.Authenticated = true
	view.Principal = s.Principal
	view.Mode = s.Mode
	view.LoginTime = timePtr(s.LoginTime)
	view.ExpiresAt = timePtr(s.ExpiresAt(rt.Manager.Window()))
	view.AccessTokenExpiry = timePtr(s.AccessTokenExpiry)
	return view
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// LoginHandler authenticates with email and password
func (s *Server) LoginHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		creds := authapi.Credentials{Email: req.Email, Password: req.Password}
		if _, err := rt.Manager.Login(r.Context(), creds, sessions.ModeFor(req.RememberMe)); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(rt))
	})
}

// LogoutHandler always succeeds; backend revocation is best effort
func (s *Server) LogoutHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		rt.Manager.Logout(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		writeJSON(w, http.StatusOK, sessionView(rt))
	})
}

// UpdatePrincipalHandler merges a JSON object into the principal
func (s *Server) UpdatePrincipalHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) == 0 {
			writeJSONError(w, "expected a non-empty JSON object", http.StatusBadRequest)
			return
		}
		p, err := rt.Manager.UpdatePrincipal(r.Context(), patch)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}

// ReloadPrincipalHandler re-fetches the principal from the backend
func (s *Server) ReloadPrincipalHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		if err := rt.Manager.RefreshPrincipal(r.Context()); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(rt))
	})
}

// NoticesHandler hands out pending notices once
func (s *Server) NoticesHandler() http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		writeJSON(w, http.StatusOK, map[string]any{"notices": rt.Notices()})
	})
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// statusFor maps an error from the session stack to the gateway's response status
func statusFor(err error) int {
	var netErr *apperrors.NetworkError
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials),
		apperrors.Is(err, apperrors.ErrNoSession),
		apperrors.IsRefreshError(err):
		return http.StatusUnauthorized
	case apperrors.Is(err, apperrors.ErrAccountDeleted):
		return http.StatusForbidden
	case apperrors.Is(err, apperrors.ErrStaleSession):
		return http.StatusConflict
	case apperrors.Is(err, apperrors.ErrUnknownProvider),
		apperrors.Is(err, apperrors.ErrTenantNotFound),
		apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		if code := apperrors.StatusCode(err); code != 0 {
			return code
		}
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrInvalidState),
		apperrors.Is(err, apperrors.ErrMissingCode),
		apperrors.Is(err, apperrors.ErrOAuthDenied):
		return http.StatusBadRequest
	case apperrors.As(err, &netErr):
		return http.StatusBadGateway
	}
	if code := apperrors.StatusCode(err); code != 0 {
		return code
	}
	return http.StatusInternalServerError
}

func writeAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSONError(w, err.Error(), status)
}
