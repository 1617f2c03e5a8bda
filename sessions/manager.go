// Package sessions holds the authenticated session of a tenant: who is logged in,
// the tokens, how they are persisted and when an ephemeral session runs out.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/Movigation/moviesir-session/authapi"
	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/internal/metrics"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/Movigation/moviesir-session/users"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultWindow is the lifetime of an ephemeral session
	DefaultWindow        = 3600000 * time.Millisecond
	defaultLogoutTimeout = 5 * time.Second
)

// Backend is the subset of the tenant auth API the manager needs.
// *authapi.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, creds authapi.Credentials) (*authapi.LoginResult, error)
	OAuthCallback(ctx context.Context, provider, code, redirectURI string) (*authapi.LoginResult, error)
	Logout(ctx context.Context, accessToken string) error
	FetchPrincipal(ctx context.Context, accessToken, id string) (users.Principal, error)
}

// Timer is a pending expiry. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Manager owns the session of one tenant
type Manager struct {
	tenant        *tenants.Tenant
	backend       Backend
	scopes        storage.Scopes
	window        time.Duration
	logoutTimeout time.Duration
	nowTime       func() time.Time
	afterFunc     func(d time.Duration, f func()) Timer

	// ops serializes lifecycle changes and their storage writes
	ops sync.Mutex

	mu      sync.RWMutex
	current *Session
	epoch   uint64
	timer   Timer

	obsMu     sync.RWMutex
	observers []subscription
	nextObs   uint64

	reload singleflight.Group
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithAfterFunc replaces time.AfterFunc for scheduling the expiry
func WithAfterFunc(afterFunc func(d time.Duration, f func()) Timer) ManagerOption {
	return func(m *Manager) {
		m.afterFunc = afterFunc
	}
}

// WithSessionWindow overrides DefaultWindow
func WithSessionWindow(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithLogoutTimeout bounds the best-effort backend logout
func WithLogoutTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// NewManager creates a manager with no session. Call LoadFromStorage to pick up a
// persisted one.
func NewManager(tenant *tenants.Tenant, backend Backend, scopes storage.Scopes, options ...ManagerOption) (*Manager, error) {
	if tenant == nil {
		return nil, errors.New("[NewManager] tenant is required")
	}
	if backend == nil {
		return nil, errors.New("[NewManager] backend is required")
	}
	if scopes.Durable == nil || scopes.Ephemeral == nil {
		return nil, errors.New("[NewManager] durable and ephemeral storage are required")
	}

	m := &Manager{
		tenant:        tenant,
		backend:       backend,
		scopes:        scopes,
		window:        DefaultWindow,
		logoutTimeout: defaultLogoutTimeout,
		nowTime:       time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Tenant returns the backend profile of the session
func (m *Manager) Tenant() *tenants.Tenant {
	return m.tenant
}

// Window is the ephemeral session lifetime
func (m *Manager) Window() time.Duration {
	return m.window
}

// Login authenticates with credentials and starts a session persisted per mode.
// Rejected credentials surface as ErrInvalidCredentials or ErrAccountDeleted.
func (m *Manager) Login(ctx context.Context, creds authapi.Credentials, mode Mode) (*Session, error) {
	res, err := m.backend.Login(ctx, creds)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login]")
	}
	return m.establish(ctx, res, mode)
}

// LoginWithOAuth completes a social login with the provider's authorization code
func (m *Manager) LoginWithOAuth(ctx context.Context, provider, code, redirectURI string, mode Mode) (*Session, error) {
	res, err := m.backend.OAuthCallback(ctx, provider, code, redirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.LoginWithOAuth]")
	}
	return m.establish(ctx, res, mode)
}

func (m *Manager) establish(ctx context.Context, res *authapi.LoginResult, mode Mode) (*Session, error) {
	if mode != ModeEphemeral {
		mode = ModeDurable
	}

	s := &Session{
		ID:                uuid.NewString(),
		TenantID:          m.tenant.ID,
		AccessToken:       res.AccessToken,
		RefreshToken:      res.RefreshToken,
		Principal:         res.Principal,
		Mode:              mode,
		LoginTime:         m.nowTime(),
		AccessTokenExpiry: accessTokenExpiry(res.AccessToken),
	}

	m.ops.Lock()
	if err := m.persist(ctx, s); err != nil {
		m.rollback(ctx)
		m.ops.Unlock()
		return nil, errors.Wrap(err, "[Manager.establish] persist session")
	}
	m.mu.Lock()
	m.stopTimerLocked()
	m.current = s
	m.epoch++
	if mode == ModeEphemeral {
		m.armLocked(m.window, m.epoch)
	}
	snapshot := *s
	m.mu.Unlock()
	m.ops.Unlock()

	metrics.Logins.WithLabelValues(m.tenant.ID, string(mode)).Inc()
	log.Info().Str("tenant", m.tenant.ID).Str("principal", s.Principal.PrincipalID()).Str("mode", string(mode)).Msg("logged in")
	m.publish(ctx, Event{Type: EventLogin, Principal: s.Principal})
	return &snapshot, nil
}

// Logout ends the session. The backend is asked to revoke the tokens on a best
// effort basis; local state is always cleared.
func (m *Manager) Logout(ctx context.Context) {
	m.end(ctx, ReasonUserLogout, true, 0)
}

// Clear drops the session without contacting the backend. Clearing an empty manager
// is a no-op.
func (m *Manager) Clear(ctx context.Context, reason Reason) {
	m.end(ctx, reason, false, 0)
}

// ClearFor drops the session only if it is still the one started at epoch. The
// refresh path uses it once the refresh token has been rejected, so a session that
// replaced the refreshed one survives.
func (m *Manager) ClearFor(ctx context.Context, epoch uint64, reason Reason) {
	m.end(ctx, reason, false, epoch)
}

// end tears the session down. When epoch is non-zero only that session is ended.
func (m *Manager) end(ctx context.Context, reason Reason, revoke bool, epoch uint64) {
	m.ops.Lock()
	m.mu.Lock()
	s := m.current
	if s == nil || (epoch != 0 && epoch != m.epoch) {
		m.mu.Unlock()
		m.ops.Unlock()
		return
	}
	m.stopTimerLocked()
	m.current = nil
	m.epoch++
	m.mu.Unlock()

	if revoke {
		m.revoke(ctx, s.AccessToken)
	}
	m.wipe(ctx)
	m.ops.Unlock()

	metrics.SessionsEnded.WithLabelValues(m.tenant.ID, string(reason)).Inc()
	log.Info().Str("tenant", m.tenant.ID).Str("principal", s.Principal.PrincipalID()).Str("reason", string(reason)).Msg("session ended")

	if reason == ReasonExpired {
		m.publish(ctx, Event{Type: EventSessionExpired, Principal: s.Principal, Reason: reason})
	}
	m.publish(ctx, Event{Type: EventLogout, Principal: s.Principal, Reason: reason})
}

func (m *Manager) revoke(ctx context.Context, accessToken string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTimeout)
	defer cancel()
	if err := m.backend.Logout(ctx, accessToken); err != nil {
		log.Warn().Err(err).Str("tenant", m.tenant.ID).Msg("backend logout failed, clearing local session anyway")
	}
}

// LoadFromStorage restores a persisted session. It is a no-op when nothing is
// stored. An ephemeral session whose window has already elapsed is expired at once.
func (m *Manager) LoadFromStorage(ctx context.Context) (*Session, error) {
	m.ops.Lock()
	s, err := m.restore(ctx)
	if err != nil {
		m.wipe(ctx)
		m.ops.Unlock()
		return nil, errors.Wrap(err, "[Manager.LoadFromStorage]")
	}
	if s == nil {
		m.ops.Unlock()
		return nil, nil
	}

	m.mu.Lock()
	m.stopTimerLocked()
	m.current = s
	m.epoch++
	epoch := m.epoch
	remaining := time.Duration(0)
	if s.Mode == ModeEphemeral {
		remaining = m.window - m.nowTime().Sub(s.LoginTime)
		if remaining > 0 {
			m.armLocked(remaining, epoch)
		}
	}
	snapshot := *s
	m.mu.Unlock()
	m.ops.Unlock()

	log.Info().Str("tenant", m.tenant.ID).Str("principal", s.Principal.PrincipalID()).Str("mode", string(s.Mode)).Msg("session restored")
	m.publish(ctx, Event{Type: EventLogin, Principal: s.Principal, Restored: true})

	if s.Mode == ModeEphemeral && remaining <= 0 {
		m.end(ctx, ReasonExpired, true, epoch)
		return nil, nil
	}
	return &snapshot, nil
}

// UpdatePrincipal merges patch into the principal and re-persists it in the scope
// of the current mode. Tokens are untouched.
func (m *Manager) UpdatePrincipal(ctx context.Context, patch map[string]any) (users.Principal, error) {
	m.ops.Lock()
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s == nil {
		m.ops.Unlock()
		return nil, errors.Wrap(apperrors.ErrNoSession, "[Manager.UpdatePrincipal]")
	}

	merged, err := users.Merge(s.Principal, patch)
	if err != nil {
		m.ops.Unlock()
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Manager.UpdatePrincipal] "+err.Error())
	}
	if err := m.savePrincipal(ctx, s.Mode, merged); err != nil {
		m.ops.Unlock()
		return nil, errors.Wrap(err, "[Manager.UpdatePrincipal]")
	}
	m.mu.Lock()
	if m.current != nil {
		m.current.Principal = merged
	}
	m.mu.Unlock()
	m.ops.Unlock()

	m.publish(ctx, Event{Type: EventPrincipalUpdated, Principal: merged})
	return merged, nil
}

// RefreshPrincipal reloads the principal from the backend. Concurrent calls share
// one request. Failures leave the session as it was.
func (m *Manager) RefreshPrincipal(ctx context.Context) error {
	_, err, _ := m.reload.Do("principal", func() (any, error) {
		return nil, m.refreshPrincipal(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Str("tenant", m.tenant.ID).Msg("principal reload failed")
	}
	return err
}

func (m *Manager) refreshPrincipal(ctx context.Context) error {
	m.mu.RLock()
	s := m.current
	epoch := m.epoch
	m.mu.RUnlock()
	if s == nil {
		return errors.Wrap(apperrors.ErrNoSession, "[Manager.RefreshPrincipal]")
	}

	p, err := m.backend.FetchPrincipal(ctx, s.AccessToken, s.Principal.PrincipalID())
	if err != nil {
		return errors.Wrap(err, "[Manager.RefreshPrincipal]")
	}

	m.ops.Lock()
	m.mu.Lock()
	if m.current == nil || m.epoch != epoch {
		m.mu.Unlock()
		m.ops.Unlock()
		return errors.Wrap(apperrors.ErrStaleSession, "[Manager.RefreshPrincipal]")
	}
	m.current.Principal = p
	mode := m.current.Mode
	m.mu.Unlock()
	err = m.savePrincipal(ctx, mode, p)
	m.ops.Unlock()
	if err != nil {
		return errors.Wrap(err, "[Manager.RefreshPrincipal]")
	}

	m.publish(ctx, Event{Type: EventPrincipalUpdated, Principal: p})
	return nil
}

// SetAccessToken installs a refreshed access token on the current session
func (m *Manager) SetAccessToken(ctx context.Context, token string) error {
	return m.SetAccessTokenFor(ctx, 0, token)
}

// SetAccessTokenFor installs token only if the session started at epoch is still
// current. It returns ErrStaleSession otherwise. Epoch 0 means the current session.
func (m *Manager) SetAccessTokenFor(ctx context.Context, epoch uint64, token string) error {
	m.ops.Lock()
	m.mu.Lock()
	if epoch != 0 && epoch != m.epoch {
		m.mu.Unlock()
		m.ops.Unlock()
		return errors.Wrap(apperrors.ErrStaleSession, "[Manager.SetAccessTokenFor]")
	}
	if m.current == nil {
		m.mu.Unlock()
		m.ops.Unlock()
		return errors.Wrap(apperrors.ErrNoSession, "[Manager.SetAccessTokenFor]")
	}
	m.current.AccessToken = token
	m.current.AccessTokenExpiry = accessTokenExpiry(token)
	mode := m.current.Mode
	principal := m.current.Principal
	m.mu.Unlock()

	err := m.scopes.Of(mode.Scope()).Set(ctx, storage.KeyAccessToken, token)
	m.ops.Unlock()
	if err != nil {
		log.Error().Err(err).Str("tenant", m.tenant.ID).Msg("failed to persist refreshed access token")
	}

	m.publish(ctx, Event{Type: EventTokenRefreshed, Principal: principal})
	return nil
}

// AccessToken returns the current bearer token or ""
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// RefreshToken returns the current refresh token or ""
func (m *Manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.RefreshToken
}

// Tokens reads both tokens and the epoch they belong to in one step
func (m *Manager) Tokens() (accessToken, refreshToken string, epoch uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", "", m.epoch
	}
	return m.current.AccessToken, m.current.RefreshToken, m.epoch
}

// Epoch changes every time a session starts or ends. Requests compare it before and
// after the round trip to drop responses that belong to a previous session.
func (m *Manager) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Current returns a copy of the session
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Subscribe registers o for every subsequent event. The returned function removes it.
func (m *Manager) Subscribe(o Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.nextObs++
	id := m.nextObs
	m.observers = append(m.observers, subscription{id: id, observer: o})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			defer m.obsMu.Unlock()
			for i, sub := range m.observers {
				if sub.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (m *Manager) publish(ctx context.Context, e Event) {
	e.TenantID = m.tenant.ID
	e.At = m.nowTime()

	m.obsMu.RLock()
	subs := make([]subscription, len(m.observers))
	copy(subs, m.observers)
	m.obsMu.RUnlock()

	for _, sub := range subs {
		m.notify(ctx, sub.observer, e)
	}
}

func (m *Manager) notify(ctx context.Context, o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", string(e.Type)).Msg("session observer panicked")
		}
	}()
	o.OnSessionEvent(ctx, e)
}
