package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/refresh"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeSession counts epochs like sessions.Manager: every start and end bumps it
type fakeSession struct {
	mu      sync.Mutex
	epoch   uint64
	access  string
	refresh string
	clears  []sessions.Reason
}

func newFakeSession(access, refresh string) *fakeSession {
	return &fakeSession{epoch: 1, access: access, refresh: refresh}
}

func (f *fakeSession) Tokens() (string, string, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access, f.refresh, f.epoch
}

func (f *fakeSession) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeSession) Epoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

func (f *fakeSession) SetAccessTokenFor(_ context.Context, epoch uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return apperrors.ErrStaleSession
	}
	if f.access == "" && f.refresh == "" {
		return apperrors.ErrNoSession
	}
	f.access = token
	return nil
}

func (f *fakeSession) ClearFor(_ context.Context, epoch uint64, reason sessions.Reason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch || (f.access == "" && f.refresh == "") {
		return
	}
	f.clearLocked(reason)
}

func (f *fakeSession) logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearLocked(sessions.ReasonUserLogout)
}

func (f *fakeSession) login(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access, f.refresh = access, refresh
	f.epoch++
}

func (f *fakeSession) clearLocked(reason sessions.Reason) {
	f.access, f.refresh = "", ""
	f.epoch++
	f.clears = append(f.clears, reason)
}

func (f *fakeSession) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clears)
}

type fakeRefresher struct {
	calls  atomic.Int32
	gate   chan struct{}
	token  string
	err    error
	before func()
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (string, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before()
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func setupCoordinator(t *testing.T, session *fakeSession, refresher *fakeRefresher) *refresh.Coordinator {
	t.Helper()
	c, err := refresh.NewCoordinator("moviesir", session, refresher, refresh.WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func TestNewCoordinatorRequiresDeps(t *testing.T) {
	_, err := refresh.NewCoordinator("t", nil, &fakeRefresher{})
	require.Error(t, err)
	_, err = refresh.NewCoordinator("t", newFakeSession("", ""), nil)
	require.Error(t, err)
}

func TestAwait_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	const callers = 8
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{gate: make(chan struct{}), token: "new"}
	c := setupCoordinator(t, session, refresher)

	var g errgroup.Group
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			tok, err := c.Await(context.Background(), 1, "old")
			tokens[i] = tok
			return err
		})
	}

	require.Eventually(t, func() bool { return c.Pending() == callers-1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, refresh.Refreshing, c.State())
	close(refresher.gate)

	require.NoError(t, g.Wait())
	for _, tok := range tokens {
		require.Equal(t, "new", tok)
	}
	require.EqualValues(t, 1, refresher.calls.Load())
	require.Equal(t, "new", session.AccessToken())
	require.Equal(t, refresh.Idle, c.State())
	require.Zero(t, c.Pending())
}

func TestAwait_FailureRejectsEveryCallerAndClearsOnce(t *testing.T) {
	const callers = 5
	session := newFakeSession("old", "rt")
	cause := errors.New("http status 401")
	refresher := &fakeRefresher{gate: make(chan struct{}), err: cause}
	c := setupCoordinator(t, session, refresher)

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Await(context.Background(), 1, "old")
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.Pending() == callers-1 }, 2*time.Second, 5*time.Millisecond)
	close(refresher.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.True(t, apperrors.IsRefreshError(err))
		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		require.ErrorIs(t, err, cause)
	}
	require.Equal(t, 1, session.clearCount())
	require.Equal(t, sessions.ReasonRefreshFailed, session.clears[0])

	// the session is gone, later 401s fail fast without another round trip
	_, err := c.Await(context.Background(), session.Epoch(), "old")
	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
	require.EqualValues(t, 1, refresher.calls.Load())
	require.Equal(t, 1, session.clearCount())
}

func TestAwait_NoRefreshTokenSkipsNetwork(t *testing.T) {
	session := newFakeSession("old", "")
	refresher := &fakeRefresher{token: "new"}
	c := setupCoordinator(t, session, refresher)

	_, err := c.Await(context.Background(), 1, "old")
	require.True(t, apperrors.IsRefreshError(err))
	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
	require.Zero(t, refresher.calls.Load())
	require.Equal(t, []sessions.Reason{sessions.ReasonRefreshFailed}, session.clears)
}

func TestAwait_TokenAlreadyRotated(t *testing.T) {
	session := newFakeSession("newer", "rt")
	refresher := &fakeRefresher{token: "unused"}
	c := setupCoordinator(t, session, refresher)

	tok, err := c.Await(context.Background(), 1, "old")
	require.NoError(t, err)
	require.Equal(t, "newer", tok)
	require.Zero(t, refresher.calls.Load())
}

func TestAwait_ParkedCallerHonoursContext(t *testing.T) {
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{gate: make(chan struct{}), token: "new"}
	c := setupCoordinator(t, session, refresher)

	leader := make(chan error, 1)
	go func() {
		_, err := c.Await(context.Background(), 1, "old")
		leader <- err
	}()
	require.Eventually(t, func() bool { return c.State() == refresh.Refreshing }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Await(ctx, 1, "old")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(refresher.gate)
	require.NoError(t, <-leader)
}

func TestAwait_LeaderCancellationDoesNotAbortRefresh(t *testing.T) {
	session := newFakeSession("old", "rt")
	ctx, cancel := context.WithCancel(context.Background())
	refresher := &fakeRefresher{token: "new", before: cancel}
	c := setupCoordinator(t, session, refresher)

	tok, err := c.Await(ctx, 1, "old")
	require.NoError(t, err)
	require.Equal(t, "new", tok)
}

func TestAwait_SessionEndedDuringRefresh(t *testing.T) {
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{token: "new"}
	refresher.before = session.logout
	c := setupCoordinator(t, session, refresher)

	_, err := c.Await(context.Background(), 1, "old")
	require.ErrorIs(t, err, apperrors.ErrStaleSession)
	require.False(t, apperrors.IsRefreshError(err))
	require.Equal(t, []sessions.Reason{sessions.ReasonUserLogout}, session.clears)
}

func TestAwait_RefreshedTokenNeverLandsOnNextSession(t *testing.T) {
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{token: "new"}
	refresher.before = func() {
		session.logout()
		session.login("bob", "bob-rt")
	}
	c := setupCoordinator(t, session, refresher)

	_, err := c.Await(context.Background(), 1, "old")
	require.ErrorIs(t, err, apperrors.ErrStaleSession)
	require.Equal(t, "bob", session.AccessToken())
	require.Equal(t, refresh.Idle, c.State())
}

func TestAwait_FailedRefreshLeavesNextSessionAlone(t *testing.T) {
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{err: errors.New("http status 401")}
	refresher.before = func() {
		session.logout()
		session.login("bob", "bob-rt")
	}
	c := setupCoordinator(t, session, refresher)

	_, err := c.Await(context.Background(), 1, "old")
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.Equal(t, "bob", session.AccessToken())
	require.Equal(t, []sessions.Reason{sessions.ReasonUserLogout}, session.clears)
}

func TestAwait_StaleEpochFailsFast(t *testing.T) {
	session := newFakeSession("old", "rt")
	session.login("bob", "bob-rt")
	refresher := &fakeRefresher{token: "new"}
	c := setupCoordinator(t, session, refresher)

	_, err := c.Await(context.Background(), 1, "old")
	require.ErrorIs(t, err, apperrors.ErrStaleSession)
	require.Zero(t, refresher.calls.Load())
	require.Zero(t, session.clearCount())
}

func TestAwait_WaiterOfNextSessionRunsItsOwnRefresh(t *testing.T) {
	session := newFakeSession("old", "rt")
	refresher := &fakeRefresher{gate: make(chan struct{}), token: "new"}
	c := setupCoordinator(t, session, refresher)

	leader := make(chan error, 1)
	go func() {
		_, err := c.Await(context.Background(), 1, "old")
		leader <- err
	}()
	require.Eventually(t, func() bool { return c.State() == refresh.Refreshing }, 2*time.Second, 5*time.Millisecond)

	session.logout()
	session.login("bob", "bob-rt")
	follower := make(chan string, 1)
	go func() {
		tok, err := c.Await(context.Background(), 3, "bob")
		if err != nil {
			tok = err.Error()
		}
		follower <- tok
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	close(refresher.gate)
	require.ErrorIs(t, <-leader, apperrors.ErrStaleSession)
	require.Equal(t, "new", <-follower)
	require.EqualValues(t, 2, refresher.calls.Load())
	require.Equal(t, "new", session.AccessToken())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", refresh.Idle.String())
	require.Equal(t, "refreshing", refresh.Refreshing.String())
	require.Equal(t, "draining", refresh.Draining.String())
}
