// Package server is the session gateway: a small HTTP surface a UI shell uses to
// drive the session lifecycle of each tenant and to reach the backend API with
// the session's credentials attached.
package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/Movigation/moviesir-session/oauthprovider"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	tenants  tenants.Repo
	runtimes map[string]*Runtime
	oauth    *oauthprovider.Flow
	gatherer prometheus.Gatherer
	validate *validator.Validate
}

type Option func(s *Server)

// WithOAuthFlow enables the social login routes
func WithOAuthFlow(flow *oauthprovider.Flow) Option {
	return func(s *Server) {
		s.oauth = flow
	}
}

// WithGatherer exposes the given registry on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates the gateway for the tenants in repo. Every tenant needs a runtime.
func New(cfg config.Config, repo tenants.Repo, runtimes []*Runtime, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if repo == nil {
		return nil, errors.New("[Server New] tenant repo is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		tenants:  repo,
		runtimes: make(map[string]*Runtime, len(runtimes)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, rt := range runtimes {
		if _, err := repo.Get(rt.Tenant.ID); err != nil {
			return nil, errors.Wrapf(err, "[Server New] runtime for %q", rt.Tenant.ID)
		}
		s.runtimes[rt.Tenant.ID] = rt
	}
	for _, o := range options {
		o(s)
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

// Runtime returns the session stack of tenantID
func (s *Server) Runtime(tenantID string) (*Runtime, bool) {
	rt, ok := s.runtimes[tenantID]
	return rt, ok
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			printRoute(os.Stdout, parts[0], parts[1])
		} else {
			printRoute(os.Stdout, "", parts[0])
		}
	}
}
