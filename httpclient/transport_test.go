package httpclient_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Movigation/moviesir-session/authapi"
	"github.com/Movigation/moviesir-session/authapi/fakebackend"
	"github.com/Movigation/moviesir-session/httpclient"
	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/refresh"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type moviesResponse struct {
	Movies []string `json:"movies"`
}

// hookTransport runs onResponse after the backend answered, before the session
// transport inspects the response
type hookTransport struct {
	onResponse func()
}

func (h *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if h.onResponse != nil {
		h.onResponse()
	}
	return resp, err
}

type testFixture struct {
	backend     *fakebackend.Backend
	manager     *sessions.Manager
	coordinator *refresh.Coordinator
	client      *httpclient.Client
	hook        *hookTransport

	mu     sync.Mutex
	routed []int
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := fakebackend.New()
	t.Cleanup(backend.Close)

	api, err := authapi.New(backend.Tenant(tenants.ConsumerTenantID))
	require.NoError(t, err)
	manager, err := sessions.NewManager(api.Tenant(), api, storage.ForTenant(storage.NewMemoryStorage(), tenants.ConsumerTenantID))
	require.NoError(t, err)
	coordinator, err := refresh.NewCoordinator(tenants.ConsumerTenantID, manager, api)
	require.NoError(t, err)

	f := &testFixture{backend: backend, manager: manager, coordinator: coordinator, hook: &hookTransport{}}
	transport, err := httpclient.NewTransport(manager, coordinator,
		httpclient.WithBase(f.hook),
		httpclient.WithTenantID(tenants.ConsumerTenantID),
		httpclient.WithErrorRouter(func(_ *http.Request, status int) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.routed = append(f.routed, status)
		}),
	)
	require.NoError(t, err)
	f.client = httpclient.NewClient(backend.URL(), transport, 5*time.Second)
	return f
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.manager.Login(context.Background(), authapi.Credentials{Email: "jane@moviesir.cloud", Password: fakebackend.DefaultPassword}, sessions.ModeDurable)
	require.NoError(t, err)
}

func (f *testFixture) routedStatuses() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.routed...)
}

func TestNewTransportRequiresSession(t *testing.T) {
	_, err := httpclient.NewTransport(nil, nil)
	require.Error(t, err)
}

func TestBearerInjection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// without a session the request goes out untouched and the 401 comes back
	err := f.client.Get(ctx, "/movies", nil)
	require.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))

	f.login(t)
	var out moviesResponse
	require.NoError(t, f.client.Get(ctx, "/movies", &out))
	require.Equal(t, []string{"Parasite", "Oldboy"}, out.Movies)

	err = f.client.Get(httpclient.WithSkipAuth(ctx), "/movies", nil)
	require.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	require.Zero(t, f.backend.RefreshCalls.Load())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()
	release := f.backend.HoldRefresh()
	defer release()

	var g errgroup.Group
	results := make([]moviesResponse, 2)
	for i := range results {
		g.Go(func() error {
			return f.client.Get(context.Background(), "/movies", &results[i])
		})
	}

	require.Eventually(t, func() bool { return f.coordinator.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	release()

	require.NoError(t, g.Wait())
	for _, r := range results {
		require.Len(t, r.Movies, 2)
	}
	require.EqualValues(t, 1, f.backend.RefreshCalls.Load())
	_, ok := f.manager.Current()
	require.True(t, ok)
}

func TestRefreshFailureEndsSessionOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.SetFailRefresh(true)
	release := f.backend.HoldRefresh()
	defer release()

	var logouts int
	f.manager.Subscribe(sessions.ObserverFunc(func(_ context.Context, e sessions.Event) {
		if e.Type == sessions.EventLogout {
			logouts++
		}
	}))

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			return f.client.Get(context.Background(), "/movies", nil)
		})
	}
	require.Eventually(t, func() bool { return f.coordinator.Pending() == 2 }, 2*time.Second, 5*time.Millisecond)
	release()
	err := g.Wait()
	require.True(t, apperrors.IsRefreshError(err))

	_, ok := f.manager.Current()
	require.False(t, ok)
	require.Equal(t, 1, logouts)

	// later requests find no session and do not refresh again
	calls := f.backend.RefreshCalls.Load()
	err = f.client.Get(context.Background(), "/movies", nil)
	require.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	require.Equal(t, calls, f.backend.RefreshCalls.Load())
}

func TestReplayHappensAtMostOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	// /status/401 rejects every token, including the refreshed one
	err := f.client.Get(httpclient.WithSkipErrorRedirect(context.Background()), "/status/401", nil)
	require.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	require.EqualValues(t, 1, f.backend.RefreshCalls.Load())
	_, ok := f.manager.Current()
	require.True(t, ok)
}

func TestBodyIsReplayedAfterRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.ExpireAccessTokens()

	var out map[string]any
	require.NoError(t, f.client.Post(context.Background(), "/movies", map[string]any{"genre": "thriller"}, &out))
	require.Equal(t, "thriller", out["genre"])
	require.EqualValues(t, 1, f.backend.RefreshCalls.Load())
}

func TestErrorRouter(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	for _, path := range []string{"/status/400", "/status/423", "/status/500", "/status/404"} {
		require.Error(t, f.client.Get(ctx, path, nil))
	}
	require.Error(t, f.client.Get(httpclient.WithSkipErrorRedirect(ctx), "/status/500", nil))

	require.Equal(t, []int{400, 423, 500}, f.routedStatuses())
}

func TestLateResponseAfterLogoutIsDropped(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.hook.onResponse = func() {
		f.hook.onResponse = nil
		f.manager.Clear(context.Background(), sessions.ReasonUserLogout)
	}
	err := f.client.Get(context.Background(), "/movies", nil)
	require.ErrorIs(t, err, apperrors.ErrStaleSession)
}

func TestNetworkError(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Close()

	err := f.client.Get(context.Background(), "/movies", nil)
	var netErr *apperrors.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, "GET /movies", netErr.Op)
}
