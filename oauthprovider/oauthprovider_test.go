package oauthprovider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/oauthprovider"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/stretchr/testify/require"
)

type oauthConfig struct {
	issuer       string
	googleClient string
	githubClient string
}

func (c oauthConfig) GetGoogleClientID() string     { return c.googleClient }
func (c oauthConfig) GetGoogleClientSecret() string { return "google-secret" }
func (c oauthConfig) GetGoogleIssuer() string       { return c.issuer }
func (c oauthConfig) GetGitHubClientID() string     { return c.githubClient }
func (c oauthConfig) GetGitHubClientSecret() string { return "github-secret" }
func (c oauthConfig) GetOAuthRedirectBase() string  { return "https://console.moviesir.cloud" }

type testFixture struct {
	discoveries *atomic.Int32
	registry    *oauthprovider.Registry
	repo        *oauthprovider.InMemoryFlowRepo
	flow        *oauthprovider.Flow
	now         time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{discoveries: &atomic.Int32{}, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		f.discoveries.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/o/oauth2/v2/auth",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/certs",
		})
	}))
	t.Cleanup(srv.Close)
	issuer = srv.URL

	var err error
	f.registry, err = oauthprovider.NewRegistry(oauthConfig{issuer: issuer, googleClient: "google-client", githubClient: "github-client"})
	require.NoError(t, err)
	f.repo = oauthprovider.NewInMemoryFlowRepo()
	f.flow, err = oauthprovider.NewFlow(f.registry, f.repo, oauthprovider.WithFlowNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func stateOf(t *testing.T, authURL string) (*url.URL, string) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return u, state
}

func TestGoogleUsesDiscoveredEndpoints(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	authURL, err := f.flow.Start(ctx, tenants.ConsoleTenantID, oauthprovider.Google, "/dashboard", true)
	require.NoError(t, err)

	u, _ := stateOf(t, authURL)
	require.Equal(t, "/o/oauth2/v2/auth", u.Path)
	require.Equal(t, "google-client", u.Query().Get("client_id"))
	require.Equal(t, "https://console.moviesir.cloud/auth/google/callback", u.Query().Get("redirect_uri"))
	require.Contains(t, u.Query().Get("scope"), "openid")

	// discovery is cached
	_, err = f.flow.Start(ctx, tenants.ConsoleTenantID, oauthprovider.Google, "/dashboard", true)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.discoveries.Load())
}

func TestGitHubAuthURL(t *testing.T) {
	f := setupTestFixture(t)

	authURL, err := f.flow.Start(context.Background(), tenants.ConsoleTenantID, oauthprovider.GitHub, "", false)
	require.NoError(t, err)

	u, _ := stateOf(t, authURL)
	require.Equal(t, "github.com", u.Host)
	require.Equal(t, "/login/oauth/authorize", u.Path)
	require.Equal(t, "https://console.moviesir.cloud/auth/github/callback", u.Query().Get("redirect_uri"))
}

func TestUnknownOrUnconfiguredProvider(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.flow.Start(context.Background(), tenants.ConsoleTenantID, "kakao", "", false)
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)

	registry, err := oauthprovider.NewRegistry(oauthConfig{})
	require.NoError(t, err)
	_, err = registry.Config(context.Background(), oauthprovider.GitHub)
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
	_, err = registry.Config(context.Background(), oauthprovider.Google)
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestComplete(t *testing.T) {
	f := setupTestFixture(t)
	authURL, err := f.flow.Start(context.Background(), tenants.ConsoleTenantID, oauthprovider.GitHub, "/keys", true)
	require.NoError(t, err)
	_, state := stateOf(t, authURL)

	flow, code, err := f.flow.Complete(oauthprovider.GitHub, url.Values{"state": {state}, "code": {"abc"}})
	require.NoError(t, err)
	require.Equal(t, "abc", code)
	require.Equal(t, tenants.ConsoleTenantID, flow.TenantID)
	require.Equal(t, "/keys", flow.ReturnURL)
	require.True(t, flow.RememberMe)
	require.Equal(t, "https://console.moviesir.cloud/auth/github/callback", flow.RedirectURI)

	// a state is single use
	_, _, err = f.flow.Complete(oauthprovider.GitHub, url.Values{"state": {state}, "code": {"abc"}})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		query    func(state string) url.Values
		advance  time.Duration
		want     error
	}{
		{
			name:     "provider denied",
			provider: oauthprovider.GitHub,
			query:    func(s string) url.Values { return url.Values{"state": {s}, "error": {"access_denied"}} },
			want:     apperrors.ErrOAuthDenied,
		},
		{
			name:     "missing code",
			provider: oauthprovider.GitHub,
			query:    func(s string) url.Values { return url.Values{"state": {s}} },
			want:     apperrors.ErrMissingCode,
		},
		{
			name:     "missing state",
			provider: oauthprovider.GitHub,
			query:    func(string) url.Values { return url.Values{"code": {"abc"}} },
			want:     apperrors.ErrInvalidState,
		},
		{
			name:     "unknown state",
			provider: oauthprovider.GitHub,
			query:    func(string) url.Values { return url.Values{"state": {"forged"}, "code": {"abc"}} },
			want:     apperrors.ErrInvalidState,
		},
		{
			name:     "state of another provider",
			provider: oauthprovider.Google,
			query:    func(s string) url.Values { return url.Values{"state": {s}, "code": {"abc"}} },
			want:     apperrors.ErrInvalidState,
		},
		{
			name:     "expired",
			provider: oauthprovider.GitHub,
			query:    func(s string) url.Values { return url.Values{"state": {s}, "code": {"abc"}} },
			advance:  oauthprovider.DefaultFlowTTL + time.Second,
			want:     apperrors.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			authURL, err := f.flow.Start(context.Background(), tenants.ConsoleTenantID, oauthprovider.GitHub, "", false)
			require.NoError(t, err)
			_, state := stateOf(t, authURL)

			f.now = f.now.Add(tt.advance)
			_, _, err = f.flow.Complete(tt.provider, tt.query(state))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStartPrunesAbandonedFlows(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	authURL, err := f.flow.Start(ctx, tenants.ConsoleTenantID, oauthprovider.GitHub, "", false)
	require.NoError(t, err)
	_, abandoned := stateOf(t, authURL)

	f.now = f.now.Add(oauthprovider.DefaultFlowTTL + time.Minute)
	_, err = f.flow.Start(ctx, tenants.ConsoleTenantID, oauthprovider.GitHub, "", false)
	require.NoError(t, err)

	_, err = f.repo.Get(abandoned)
	require.Error(t, err)
}

func TestInMemoryFlowRepoCopies(t *testing.T) {
	repo := oauthprovider.NewInMemoryFlowRepo()
	flow := &oauthprovider.FlowState{TenantID: tenants.ConsoleTenantID, Provider: oauthprovider.Google}
	require.NoError(t, repo.Upsert("s1", flow))
	flow.TenantID = "changed"

	got, err := repo.Get("s1")
	require.NoError(t, err)
	require.Equal(t, tenants.ConsoleTenantID, got.TenantID)

	require.Error(t, repo.Upsert("", flow))
	require.Error(t, repo.Upsert("s2", nil))
	require.NoError(t, repo.Delete("s1"))
	_, err = repo.Get("s1")
	require.Error(t, err)
}
