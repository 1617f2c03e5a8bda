package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Movigation/moviesir-session/httpclient"
	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// forwardedHeaders are copied from the shell's request to the backend
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type"}

// ProxyHandler forwards /api/<path> to the tenant's API with the session's bearer
// token. Expired tokens are refreshed transparently; a failed refresh ends the
// session and answers 401.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return s.proxyTo(func(rt *Runtime) *httpclient.Client { return rt.API })
}

// AuthProxyHandler forwards /auth-api/<path> to the tenant's auth server (profile,
// password and account endpoints) the same way
func (s *Server) AuthProxyHandler() http.HandlerFunc {
	return s.proxyTo(func(rt *Runtime) *httpclient.Client { return rt.Auth })
}

func (s *Server) proxyTo(clientFor func(rt *Runtime) *httpclient.Client) http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		client := clientFor(rt)
		ctx := r.Context()
		if skip, _ := strconv.ParseBool(r.Header.Get(headerSkipErrorRedirect)); skip {
			ctx = httpclient.WithSkipErrorRedirect(ctx)
		}

		path := r.PathValue("path")
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}
		var body io.Reader
		if r.ContentLength != 0 {
			body = r.Body
		}
		req, err := http.NewRequestWithContext(ctx, r.Method, client.BaseURL()+"/"+path, body)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.ContentLength = r.ContentLength
		for _, h := range forwardedHeaders {
			if v := r.Header.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			if apperrors.IsRefreshError(err) {
				log.Info().Str("tenant", rt.Tenant.ID).Msg("session ended by failed refresh")
			}
			writeAppError(w, err)
			return
		}
		defer resp.Body.Close()

		for _, h := range []string{"Content-Type", "Cache-Control"} {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Warn().Err(err).Str("tenant", rt.Tenant.ID).Msg("failed to relay backend response")
		}
	})
}
