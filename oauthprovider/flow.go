package oauthprovider

import (
	"context"
	"net/url"
	"time"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultFlowTTL bounds how long a user may spend on the provider's consent page
const DefaultFlowTTL = 10 * time.Minute

type pruner interface {
	Prune(cutoff time.Time) int
}

// Flow starts social logins and checks their callbacks
type Flow struct {
	registry *Registry
	repo     FlowRepo
	ttl      time.Duration
	nowTime  func() time.Time
}

type FlowOption func(f *Flow)

func WithFlowTTL(ttl time.Duration) FlowOption {
	return func(f *Flow) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func WithFlowNowTime(nowFunc func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowTime = nowFunc
	}
}

func NewFlow(registry *Registry, repo FlowRepo, options ...FlowOption) (*Flow, error) {
	if registry == nil {
		return nil, errors.New("[NewFlow] registry is required")
	}
	if repo == nil {
		return nil, errors.New("[NewFlow] flow repo is required")
	}
	f := &Flow{registry: registry, repo: repo, ttl: DefaultFlowTTL, nowTime: time.Now}
	for _, o := range options {
		o(f)
	}
	return f, nil
}

// Start records a new flow for tenantID and returns the provider URL to redirect to
func (f *Flow) Start(ctx context.Context, tenantID, provider, returnURL string, rememberMe bool) (string, error) {
	cfg, err := f.registry.Config(ctx, provider)
	if err != nil {
		return "", errors.Wrap(err, "[Flow.Start]")
	}

	now := f.nowTime()
	if p, ok := f.repo.(pruner); ok {
		if n := p.Prune(now.Add(-f.ttl)); n > 0 {
			log.Debug().Int("count", n).Msg("pruned abandoned oauth flows")
		}
	}

	state := uuid.NewString()
	err = f.repo.Upsert(state, &FlowState{
		TenantID:    tenantID,
		Provider:    provider,
		RedirectURI: cfg.RedirectURL,
		ReturnURL:   returnURL,
		RememberMe:  rememberMe,
		CreatedAt:   now,
	})
	if err != nil {
		return "", errors.Wrap(err, "[Flow.Start] save state")
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Complete validates a provider callback. It returns the recorded flow and the
// authorization code. A state is accepted only once.
func (f *Flow) Complete(provider string, query url.Values) (*FlowState, string, error) {
	state := query.Get("state")
	if state == "" {
		return nil, "", errors.Wrap(apperrors.ErrInvalidState, "[Flow.Complete] missing state")
	}
	flow, err := f.repo.Get(state)
	if err != nil {
		return nil, "", errors.Wrapf(apperrors.ErrInvalidState, "[Flow.Complete] %v", err)
	}
	if err := f.repo.Delete(state); err != nil {
		log.Warn().Err(err).Msg("failed to delete oauth flow state")
	}

	if flow.Provider != provider {
		return nil, "", errors.Wrapf(apperrors.ErrInvalidState, "[Flow.Complete] state issued for %s", flow.Provider)
	}
	if f.nowTime().Sub(flow.CreatedAt) > f.ttl {
		return nil, "", errors.Wrap(apperrors.ErrInvalidState, "[Flow.Complete] state expired")
	}
	if e := query.Get("error"); e != "" {
		return flow, "", errors.Wrapf(apperrors.ErrOAuthDenied, "[Flow.Complete] %s: %s", provider, e)
	}
	code := query.Get("code")
	if code == "" {
		return flow, "", errors.Wrap(apperrors.ErrMissingCode, "[Flow.Complete]")
	}
	return flow, code, nil
}
