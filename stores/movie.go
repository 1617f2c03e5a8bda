// Package stores holds the client side UI state that depends on who is signed in.
// Each store subscribes to a sessions.Manager and keeps itself consistent with the
// session without the session store knowing about it.
package stores

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/Movigation/moviesir-session/sessions"
	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTime is the available watching time filter of a fresh store
const DefaultTime = "00:00"

// Filters narrows recommendations
type Filters struct {
	Time         string   `json:"time"`
	Genres       []string `json:"genres"`
	ExcludeAdult bool     `json:"exclude_adult"`
}

func defaultFilters() Filters {
	return Filters{Time: DefaultTime, Genres: []string{}}
}

// Movie is a recommended title
type Movie struct {
	ID      int64  `json:"movie_id"`
	Title   string `json:"title"`
	Runtime int    `json:"runtime"`
}

// Recommendations is the last result shown to a user, cached per user id
type Recommendations struct {
	TrackA    []Movie `json:"trackA"`
	TrackB    []Movie `json:"trackB"`
	Filters   Filters `json:"filters"`
	SessionID *int64  `json:"sessionId"`
	Timestamp int64   `json:"timestamp"`
}

// MovieStore tracks the signed in user id, the recommendation filters and the
// per-user cache of the last result.
type MovieStore struct {
	durable storage.Storage
	nowTime func() time.Time

	mu      sync.RWMutex
	userID  string
	filters Filters
}

var _ sessions.Observer = (*MovieStore)(nil)

// NewMovieStore creates a store that caches recommendations in durable
func NewMovieStore(durable storage.Storage) (*MovieStore, error) {
	if durable == nil {
		return nil, errors.New("[NewMovieStore] storage is required")
	}
	return &MovieStore{durable: durable, nowTime: time.Now, filters: defaultFilters()}, nil
}

func (s *MovieStore) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *MovieStore) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// Filters returns a copy of the current filters
func (s *MovieStore) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.filters
	f.Genres = slices.Clone(s.filters.Genres)
	return f
}

func (s *MovieStore) SetTime(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Time = t
}

// ToggleGenre adds genre to the filter, or removes it if already selected
func (s *MovieStore) ToggleGenre(genre string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.filters.Genres, genre); i >= 0 {
		s.filters.Genres = slices.Delete(s.filters.Genres, i, i+1)
		return
	}
	s.filters.Genres = append(s.filters.Genres, genre)
}

func (s *MovieStore) SetExcludeAdult(exclude bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.ExcludeAdult = exclude
}

func (s *MovieStore) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = defaultFilters()
}

// Reset forgets the user and the filters. Cached recommendations stay on disk so
// the same user sees them again after signing back in.
func (s *MovieStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.filters = defaultFilters()
}

// SaveRecommendations caches a result for the current user. Without a user it is a
// no-op and reports saved=false.
func (s *MovieStore) SaveRecommendations(ctx context.Context, trackA, trackB []Movie, sessionID *int64) (saved bool, err error) {
	userID := s.UserID()
	if userID == "" {
		log.Warn().Msg("no signed in user, recommendations not cached")
		return false, nil
	}

	rec := Recommendations{
		TrackA:    trackA,
		TrackB:    trackB,
		Filters:   s.Filters(),
		SessionID: sessionID,
		Timestamp: s.nowTime().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, errors.Wrap(err, "[MovieStore.SaveRecommendations] marshal")
	}
	if err := s.durable.Set(ctx, storage.RecommendationsKey(userID), string(data)); err != nil {
		return false, errors.Wrap(err, "[MovieStore.SaveRecommendations] store")
	}
	log.Debug().Str("user_id", userID).Int("track_a", len(trackA)).Int("track_b", len(trackB)).Msg("recommendations cached")
	return true, nil
}

// LastRecommendations loads the cached result of the current user
func (s *MovieStore) LastRecommendations(ctx context.Context) (*Recommendations, bool, error) {
	userID := s.UserID()
	if userID == "" {
		return nil, false, nil
	}
	raw, found, err := s.durable.Get(ctx, storage.RecommendationsKey(userID))
	if err != nil || !found {
		return nil, false, errors.Wrap(err, "[MovieStore.LastRecommendations] load")
	}
	var rec Recommendations
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, errors.Wrap(err, "[MovieStore.LastRecommendations] decode")
	}
	return &rec, true, nil
}

// OnSessionEvent follows the signed in user. Any logout, forced or not, resets the store.
func (s *MovieStore) OnSessionEvent(_ context.Context, e sessions.Event) {
	switch e.Type {
	case sessions.EventLogin, sessions.EventPrincipalUpdated:
		if e.Principal != nil && e.Principal.Kind() == users.KindUser {
			s.SetUserID(e.Principal.PrincipalID())
		}
	case sessions.EventLogout:
		s.Reset()
	}
}
