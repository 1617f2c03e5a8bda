package server

import (
	"context"
	"net/http"

	"github.com/Movigation/moviesir-session/authapi"
	"github.com/Movigation/moviesir-session/httpclient"
	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/Movigation/moviesir-session/refresh"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/stores"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/Movigation/moviesir-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runtime is everything the gateway holds for one tenant: the session, its
// refresh coordinator, the HTTP clients bound to it and the dependent stores.
type Runtime struct {
	Tenant      *tenants.Tenant
	Manager     *sessions.Manager
	Coordinator *refresh.Coordinator
	API         *httpclient.Client
	Auth        *httpclient.Client

	// Consumer site only
	Movies     *stores.MovieStore
	Onboarding *stores.OnboardingStore

	// Console only
	Playground *stores.Playground

	notices *noticeBox
}

type runtimeOptions struct {
	base    http.RoundTripper
	manager []sessions.ManagerOption
}

type RuntimeOption func(o *runtimeOptions)

// WithManagerOptions passes options through to the tenant's sessions.Manager
func WithManagerOptions(options ...sessions.ManagerOption) RuntimeOption {
	return func(o *runtimeOptions) {
		o.manager = append(o.manager, options...)
	}
}

// NewRuntime wires a tenant's session stack on top of backend and restores any
// persisted session.
func NewRuntime(ctx context.Context, tenant *tenants.Tenant, backend storage.Storage, cfg config.Config, options ...RuntimeOption) (*Runtime, error) {
	if tenant == nil {
		return nil, errors.New("[NewRuntime] tenant is required")
	}
	if backend == nil {
		return nil, errors.New("[NewRuntime] storage is required")
	}
	o := runtimeOptions{base: http.DefaultTransport}
	for _, opt := range options {
		opt(&o)
	}

	api, err := authapi.New(tenant, authapi.WithHTTPClient(&http.Client{Transport: o.base, Timeout: cfg.GetRequestTimeout()}))
	if err != nil {
		return nil, errors.Wrap(err, "[NewRuntime]")
	}

	scopes := storage.ForTenant(backend, tenant.ID)
	managerOptions := append([]sessions.ManagerOption{
		sessions.WithSessionWindow(cfg.GetSessionWindow()),
		sessions.WithLogoutTimeout(cfg.GetLogoutTimeout()),
	}, o.manager...)
	manager, err := sessions.NewManager(tenant, api, scopes, managerOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRuntime]")
	}

	coordinator, err := refresh.NewCoordinator(tenant.ID, manager, api, refresh.WithTimeout(cfg.GetRequestTimeout()))
	if err != nil {
		return nil, errors.Wrap(err, "[NewRuntime]")
	}

	rt := &Runtime{Tenant: tenant, Manager: manager, Coordinator: coordinator, notices: &noticeBox{}}
	transport, err := httpclient.NewTransport(manager, coordinator,
		httpclient.WithBase(o.base),
		httpclient.WithTenantID(tenant.ID),
		httpclient.WithErrorRouter(rt.routeError),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRuntime]")
	}
	rt.API = httpclient.NewClient(tenant.APIBaseURL, transport, cfg.GetRequestTimeout())
	rt.Auth = httpclient.NewClient(tenant.AuthBaseURL, transport, cfg.GetRequestTimeout())

	manager.Subscribe(rt.notices)
	if err := rt.attachStores(ctx, scopes); err != nil {
		return nil, err
	}

	if _, err := manager.LoadFromStorage(ctx); err != nil {
		log.Warn().Err(err).Str("tenant", tenant.ID).Msg("discarded unreadable persisted session")
	}
	return rt, nil
}

func (rt *Runtime) attachStores(ctx context.Context, scopes storage.Scopes) error {
	switch rt.Tenant.PrincipalKind {
	case users.KindCompany:
		pg, err := stores.NewPlayground(scopes)
		if err != nil {
			return errors.Wrap(err, "[Runtime.attachStores]")
		}
		rt.Playground = pg
		rt.Manager.Subscribe(pg)
	default:
		movies, err := stores.NewMovieStore(scopes.Durable)
		if err != nil {
			return errors.Wrap(err, "[Runtime.attachStores]")
		}
		onboarding, err := stores.NewOnboardingStore(ctx, scopes.Durable)
		if err != nil {
			return errors.Wrap(err, "[Runtime.attachStores]")
		}
		rt.Movies, rt.Onboarding = movies, onboarding
		rt.Manager.Subscribe(movies)
		rt.Manager.Subscribe(onboarding)
	}
	return nil
}

func (rt *Runtime) routeError(req *http.Request, status int) {
	log.Debug().Str("tenant", rt.Tenant.ID).Str("path", req.URL.Path).Int("status", status).Msg("routing to error view")
	rt.notices.push(errorViewNotice(status))
}

// Notices returns and forgets the pending notices
func (rt *Runtime) Notices() []Notice {
	return rt.notices.drain()
}
