// Package oauthprovider builds the social login redirects for the console and
// validates what the provider sends back. The authorization code itself is
// exchanged by the backend.
package oauthprovider

import (
	"context"
	"sync"

	"github.com/Movigation/moviesir-session/internal/config"
	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	Google = "google"
	GitHub = "github"
)

// Registry resolves the OAuth2 client configuration of each provider. Google's
// endpoints come from OIDC discovery and are cached after the first lookup.
type Registry struct {
	cfg config.OAuthConfig

	mu      sync.RWMutex
	configs map[string]*oauth2.Config
}

func NewRegistry(cfg config.OAuthConfig) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("[NewRegistry] config is required")
	}
	return &Registry{cfg: cfg, configs: make(map[string]*oauth2.Config)}, nil
}

// RedirectURI is the callback URL registered with provider
func (r *Registry) RedirectURI(provider string) string {
	return r.cfg.GetOAuthRedirectBase() + "/auth/" + provider + "/callback"
}

// Config returns the client configuration for provider. Unknown or unconfigured
// providers yield ErrUnknownProvider.
func (r *Registry) Config(ctx context.Context, provider string) (*oauth2.Config, error) {
	r.mu.RLock()
	c, exists := r.configs[provider]
	r.mu.RUnlock()
	if exists {
		return c, nil
	}

	var err error
	switch provider {
	case Google:
		c, err = r.googleConfig(ctx)
	case GitHub:
		c, err = r.githubConfig()
	default:
		err = errors.Wrapf(apperrors.ErrUnknownProvider, "[Registry.Config] %q", provider)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.configs[provider] = c
	r.mu.Unlock()
	return c, nil
}

func (r *Registry) googleConfig(ctx context.Context) (*oauth2.Config, error) {
	if r.cfg.GetGoogleClientID() == "" {
		return nil, errors.Wrap(apperrors.ErrUnknownProvider, "[Registry.googleConfig] google client id not configured")
	}
	provider, err := oidc.NewProvider(ctx, r.cfg.GetGoogleIssuer())
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.googleConfig] discovery")
	}
	return &oauth2.Config{
		ClientID:     r.cfg.GetGoogleClientID(),
		ClientSecret: r.cfg.GetGoogleClientSecret(),
		Endpoint:     provider.Endpoint(),
		RedirectURL:  r.RedirectURI(Google),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}, nil
}

func (r *Registry) githubConfig() (*oauth2.Config, error) {
	if r.cfg.GetGitHubClientID() == "" {
		return nil, errors.Wrap(apperrors.ErrUnknownProvider, "[Registry.githubConfig] github client id not configured")
	}
	return &oauth2.Config{
		ClientID:     r.cfg.GetGitHubClientID(),
		ClientSecret: r.cfg.GetGitHubClientSecret(),
		Endpoint:     github.Endpoint,
		RedirectURL:  r.RedirectURI(GitHub),
		Scopes:       []string{"read:user", "user:email"},
	}, nil
}
