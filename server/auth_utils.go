package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/pkg/errors"
)

// tenantFromRequest picks the tenant from the X-Tenant header, else from the first
// label of the host (console.moviesir.cloud -> console). Hosts whose first label is
// not a tenant fall back to the default tenant.
func (s *Server) tenantFromRequest(r *http.Request) (*Runtime, error) {
	if id := strings.TrimSpace(r.Header.Get(headerTenant)); id != "" {
		return s.runtimeFor(id)
	}

	host := strings.SplitN(r.Host, ":", 2)[0]
	label := strings.SplitN(host, ".", 2)[0]
	if _, err := s.tenants.Get(label); err == nil {
		return s.runtimeFor(label)
	}
	return s.runtimeFor(s.config.GetDefaultTenantID())
}

func (s *Server) runtimeFor(tenantID string) (*Runtime, error) {
	t, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Server tenantFromRequest] unknown tenant %q", tenantID)
	}
	rt, ok := s.runtimes[t.ID]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrTenantNotFound, "[Server tenantFromRequest] no runtime for %q", t.ID)
	}
	return rt, nil
}

// tenantHandler resolves the runtime before calling fn
func (s *Server) tenantHandler(fn func(w http.ResponseWriter, r *http.Request, rt *Runtime)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, err := s.tenantFromRequest(r)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		fn(w, r, rt)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError uses the backend's {"detail": ...} error shape
func writeJSONError(w http.ResponseWriter, detail string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"detail": detail})
}

// redirectWithError sends the browser to path with an error query parameter
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(errorMsg), http.StatusFound)
}

// safeReturnURL only allows local paths as post-login targets
func safeReturnURL(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") {
		return RouteDashboard
	}
	return u
}
