package stores

import (
	"context"

	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Playground keeps the console playground API key. The saved key lives in the
// durable scope; a key handed over from the keys page is single use and lives in
// the ephemeral scope.
type Playground struct {
	scopes storage.Scopes
}

var _ sessions.Observer = (*Playground)(nil)

func NewPlayground(scopes storage.Scopes) (*Playground, error) {
	if scopes.Durable == nil || scopes.Ephemeral == nil {
		return nil, errors.New("[NewPlayground] both storage scopes are required")
	}
	return &Playground{scopes: scopes}, nil
}

// SaveKey remembers key across restarts
func (p *Playground) SaveKey(ctx context.Context, key string) error {
	return errors.Wrap(p.scopes.Durable.Set(ctx, storage.KeyPlaygroundAPIKey, key), "[Playground.SaveKey]")
}

// HandOver stores a key for the next call to Key only
func (p *Playground) HandOver(ctx context.Context, key string) error {
	return errors.Wrap(p.scopes.Ephemeral.Set(ctx, storage.KeyPlaygroundAPIKeyTemp, key), "[Playground.HandOver]")
}

// Key returns the handed over key if there is one, consuming it, or else the saved key
func (p *Playground) Key(ctx context.Context) (string, bool, error) {
	temp, found, err := p.scopes.Ephemeral.Get(ctx, storage.KeyPlaygroundAPIKeyTemp)
	if err != nil {
		return "", false, errors.Wrap(err, "[Playground.Key] load temporary key")
	}
	if found {
		if err := p.scopes.Ephemeral.Delete(ctx, storage.KeyPlaygroundAPIKeyTemp); err != nil {
			return "", false, errors.Wrap(err, "[Playground.Key] consume temporary key")
		}
		return temp, true, nil
	}
	saved, found, err := p.scopes.Durable.Get(ctx, storage.KeyPlaygroundAPIKey)
	return saved, found, errors.Wrap(err, "[Playground.Key] load saved key")
}

// Forget removes both keys
func (p *Playground) Forget(ctx context.Context) error {
	if err := p.scopes.Durable.Delete(ctx, storage.KeyPlaygroundAPIKey); err != nil {
		return errors.Wrap(err, "[Playground.Forget] saved key")
	}
	return errors.Wrap(p.scopes.Ephemeral.Delete(ctx, storage.KeyPlaygroundAPIKeyTemp), "[Playground.Forget] temporary key")
}

func (p *Playground) OnSessionEvent(ctx context.Context, e sessions.Event) {
	if e.Type != sessions.EventLogout {
		return
	}
	if err := p.Forget(ctx); err != nil {
		log.Error().Err(err).Str("tenant", e.TenantID).Msg("failed to remove playground keys")
	}
}
