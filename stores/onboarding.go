package stores

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OnboardingState is the part of the onboarding selection that is persisted
type OnboardingState struct {
	ProviderIDs []int `json:"provider_ids"`
	MovieIDs    []int `json:"movie_ids"`
}

// persistedOnboarding is the envelope stored under storage.KeyOnboarding
type persistedOnboarding struct {
	State   OnboardingState `json:"state"`
	Version int             `json:"version"`
}

// OnboardingStore holds the OTT providers and liked movies picked during onboarding.
// Every change is written through to durable storage.
type OnboardingStore struct {
	durable storage.Storage

	mu    sync.Mutex
	state OnboardingState
}

var _ sessions.Observer = (*OnboardingStore)(nil)

// NewOnboardingStore loads any saved selection from durable
func NewOnboardingStore(ctx context.Context, durable storage.Storage) (*OnboardingStore, error) {
	if durable == nil {
		return nil, errors.New("[NewOnboardingStore] storage is required")
	}
	s := &OnboardingStore{durable: durable, state: emptyOnboarding()}

	raw, found, err := durable.Get(ctx, storage.KeyOnboarding)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOnboardingStore] load")
	}
	if found {
		var p persistedOnboarding
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Warn().Err(err).Msg("discarding unreadable onboarding selection")
		} else {
			s.state = normalise(p.State)
		}
	}
	return s, nil
}

func emptyOnboarding() OnboardingState {
	return OnboardingState{ProviderIDs: []int{}, MovieIDs: []int{}}
}

func normalise(st OnboardingState) OnboardingState {
	if st.ProviderIDs == nil {
		st.ProviderIDs = []int{}
	}
	if st.MovieIDs == nil {
		st.MovieIDs = []int{}
	}
	return st
}

// State returns a copy of the current selection
func (s *OnboardingStore) State() OnboardingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return OnboardingState{
		ProviderIDs: slices.Clone(s.state.ProviderIDs),
		MovieIDs:    slices.Clone(s.state.MovieIDs),
	}
}

// ToggleOTT selects a provider, or deselects it if already selected
func (s *OnboardingStore) ToggleOTT(ctx context.Context, providerID int) error {
	return s.update(ctx, func(st *OnboardingState) {
		if i := slices.Index(st.ProviderIDs, providerID); i >= 0 {
			st.ProviderIDs = slices.Delete(st.ProviderIDs, i, i+1)
			return
		}
		st.ProviderIDs = append(st.ProviderIDs, providerID)
	})
}

func (s *OnboardingStore) ClearOTTList(ctx context.Context) error {
	return s.update(ctx, func(st *OnboardingState) {
		st.ProviderIDs = []int{}
	})
}

// AddLikedMovie records a liked movie once
func (s *OnboardingStore) AddLikedMovie(ctx context.Context, movieID int) error {
	return s.update(ctx, func(st *OnboardingState) {
		if !slices.Contains(st.MovieIDs, movieID) {
			st.MovieIDs = append(st.MovieIDs, movieID)
		}
	})
}

func (s *OnboardingStore) RemoveLikedMovie(ctx context.Context, movieID int) error {
	return s.update(ctx, func(st *OnboardingState) {
		st.MovieIDs = slices.DeleteFunc(st.MovieIDs, func(id int) bool { return id == movieID })
	})
}

// ClearMovieSelection drops liked movies and keeps the provider selection
func (s *OnboardingStore) ClearMovieSelection(ctx context.Context) error {
	return s.update(ctx, func(st *OnboardingState) {
		st.MovieIDs = []int{}
	})
}

func (s *OnboardingStore) Reset(ctx context.Context) error {
	return s.update(ctx, func(st *OnboardingState) {
		*st = emptyOnboarding()
	})
}

func (s *OnboardingStore) update(ctx context.Context, fn func(st *OnboardingState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)

	data, err := json.Marshal(persistedOnboarding{State: s.state})
	if err != nil {
		return errors.Wrap(err, "[OnboardingStore.update] marshal")
	}
	return errors.Wrap(s.durable.Set(ctx, storage.KeyOnboarding, string(data)), "[OnboardingStore.update] store")
}

// OnSessionEvent clears the selection when the session ends
func (s *OnboardingStore) OnSessionEvent(ctx context.Context, e sessions.Event) {
	if e.Type != sessions.EventLogout {
		return
	}
	if err := s.Reset(ctx); err != nil {
		log.Error().Err(err).Str("tenant", e.TenantID).Msg("failed to reset onboarding selection")
	}
}
