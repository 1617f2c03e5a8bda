package tenants

import (
	"strings"

	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/Movigation/moviesir-session/users"
)

const (
	ConsumerTenantID = "moviesir"
	ConsoleTenantID  = "console"
)

// Tenant describes one backend the session client talks to: where its API lives,
// which auth endpoints it exposes and what kind of principal it returns.
type Tenant struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	APIBaseURL    string              `json:"api_base_url"`  // Movies, recommendations, api keys...
	AuthBaseURL   string              `json:"auth_base_url"` // Login, refresh, logout
	PrincipalKind users.PrincipalKind `json:"principal_kind"`
	PrincipalKey  string              `json:"principal_key"` // Field holding the principal in a login response
	Paths         Paths               `json:"paths"`
}

// Paths are the auth endpoint paths relative to AuthBaseURL. OAuthCallback contains
// a {provider} placeholder and Principal an {id} placeholder.
type Paths struct {
	Login         string `json:"login"`
	Refresh       string `json:"refresh"`
	Logout        string `json:"logout"`
	OAuthCallback string `json:"oauth_callback,omitempty"`
	Principal     string `json:"principal"`
}

// SupportsOAuth reports whether the backend accepts social login callbacks
func (t *Tenant) SupportsOAuth() bool {
	return t.Paths.OAuthCallback != ""
}

// OAuthCallbackPath returns the callback path for provider
func (t *Tenant) OAuthCallbackPath(provider string) string {
	return strings.ReplaceAll(t.Paths.OAuthCallback, "{provider}", provider)
}

// PrincipalPath returns the path used to re-fetch the principal with the given id
func (t *Tenant) PrincipalPath(id string) string {
	return strings.ReplaceAll(t.Paths.Principal, "{id}", id)
}

// Defaults returns the consumer site and the B2B console backends
func Defaults(cfg config.BackendConfig) []*Tenant {
	return []*Tenant{
		{
			ID:            ConsumerTenantID,
			Name:          "MovieSir",
			APIBaseURL:    cfg.GetAPIBaseURL(),
			AuthBaseURL:   cfg.GetAuthBaseURL(),
			PrincipalKind: users.KindUser,
			PrincipalKey:  "user",
			Paths: Paths{
				Login:     "/auth/login",
				Refresh:   "/auth/refresh",
				Logout:    "/auth/logout",
				Principal: "/users/{id}",
			},
		},
		{
			ID:            ConsoleTenantID,
			Name:          "MovieSir API Console",
			APIBaseURL:    cfg.GetConsoleBaseURL(),
			AuthBaseURL:   cfg.GetConsoleBaseURL(),
			PrincipalKind: users.KindCompany,
			PrincipalKey:  "company",
			Paths: Paths{
				Login:         "/b2b/auth/login",
				Refresh:       "/b2b/auth/refresh",
				Logout:        "/b2b/auth/logout",
				OAuthCallback: "/b2b/auth/{provider}/callback",
				Principal:     "/b2b/me",
			},
		},
	}
}
