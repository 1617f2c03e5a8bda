package sessions

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/users"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var sessionKeys = []string{
	storage.KeyAccessToken,
	storage.KeyRefreshToken,
	storage.KeyPrincipal,
	storage.KeyLoginTime,
}

// persist writes s to the scope of its mode and removes any leftovers of a previous
// session from the other scope
func (m *Manager) persist(ctx context.Context, s *Session) error {
	target := m.scopes.Of(s.Mode.Scope())
	other := m.scopes.Ephemeral
	if s.Mode == ModeEphemeral {
		other = m.scopes.Durable
	}

	principal, err := json.Marshal(s.Principal)
	if err != nil {
		return errors.Wrap(err, "encode principal")
	}

	values := map[string]string{
		storage.KeyAccessToken: s.AccessToken,
		storage.KeyPrincipal:   string(principal),
	}
	if s.RefreshToken != "" {
		values[storage.KeyRefreshToken] = s.RefreshToken
	} else if err := target.Delete(ctx, storage.KeyRefreshToken); err != nil {
		return err
	}
	if s.Mode == ModeEphemeral {
		values[storage.KeyLoginTime] = strconv.FormatInt(s.LoginTime.UnixMilli(), 10)
	} else if err := target.Delete(ctx, storage.KeyLoginTime); err != nil {
		return err
	}

	for k, v := range values {
		if err := target.Set(ctx, k, v); err != nil {
			return err
		}
	}
	if err := m.scopes.Durable.Set(ctx, storage.KeyRememberMe, strconv.FormatBool(s.Mode == ModeDurable)); err != nil {
		return err
	}
	for _, k := range sessionKeys {
		if err := other.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) savePrincipal(ctx context.Context, mode Mode, p users.Principal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode principal")
	}
	return m.scopes.Of(mode.Scope()).Set(ctx, storage.KeyPrincipal, string(data))
}

// wipe removes every session key from both scopes. Errors are logged, the in-memory
// session is already gone at this point.
func (m *Manager) wipe(ctx context.Context) {
	for _, scope := range []storage.Storage{m.scopes.Durable, m.scopes.Ephemeral} {
		for _, k := range sessionKeys {
			if err := scope.Delete(ctx, k); err != nil {
				log.Error().Err(err).Str("tenant", m.tenant.ID).Str("key", k).Msg("failed to remove session key")
			}
		}
	}
	if err := m.scopes.Durable.Delete(ctx, storage.KeyRememberMe); err != nil {
		log.Error().Err(err).Str("tenant", m.tenant.ID).Str("key", storage.KeyRememberMe).Msg("failed to remove session key")
	}
}

// rollback runs after a persist failed partway. The half written keys are removed
// and the session still held in memory, if any, is written back. m.ops must be held.
func (m *Manager) rollback(ctx context.Context) {
	m.wipe(ctx)

	m.mu.RLock()
	prev := m.current
	m.mu.RUnlock()
	if prev == nil {
		return
	}
	if err := m.persist(ctx, prev); err != nil {
		log.Error().Err(err).Str("tenant", m.tenant.ID).Msg("failed to write back the previous session")
		m.wipe(ctx)
	}
}

// restore reads the persisted session. A nil session with a nil error means nothing
// was stored.
func (m *Manager) restore(ctx context.Context) (*Session, error) {
	remember, _, err := m.scopes.Durable.Get(ctx, storage.KeyRememberMe)
	if err != nil {
		return nil, err
	}
	mode := ModeFor(remember == "true")
	scope := m.scopes.Of(mode.Scope())

	access, found, err := scope.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	rawPrincipal, hasPrincipal, err := scope.Get(ctx, storage.KeyPrincipal)
	if err != nil {
		return nil, err
	}
	if !found || access == "" || !hasPrincipal {
		return nil, nil
	}

	principal, err := users.Decode(m.tenant.PrincipalKind, []byte(rawPrincipal))
	if err != nil {
		return nil, errors.Wrap(err, "stored principal")
	}
	refresh, _, err := scope.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:                uuid.NewString(),
		TenantID:          m.tenant.ID,
		AccessToken:       access,
		RefreshToken:      refresh,
		Principal:         principal,
		Mode:              mode,
		AccessTokenExpiry: accessTokenExpiry(access),
	}

	if mode == ModeEphemeral {
		// A missing or unreadable login time leaves LoginTime at zero, which expires
		// the session immediately.
		raw, _, err := scope.Get(ctx, storage.KeyLoginTime)
		if err != nil {
			return nil, err
		}
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			s.LoginTime = time.UnixMilli(ms)
		}
	}
	return s, nil
}
