package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/stores"
	"github.com/pkg/errors"
)

// FiltersPatch changes the movie filters. Absent fields are left alone.
type FiltersPatch struct {
	Time         *string `json:"time,omitempty" validate:"omitempty,len=5"`
	ToggleGenre  string  `json:"toggle_genre,omitempty"`
	ExcludeAdult *bool   `json:"exclude_adult,omitempty"`
}

// RecommendationsRequest is the result the shell asks to cache for the current user
type RecommendationsRequest struct {
	TrackA    []stores.Movie `json:"trackA" validate:"required"`
	TrackB    []stores.Movie `json:"trackB"`
	SessionID *int64         `json:"sessionId"`
}

// PlaygroundKeyRequest stores a console API key. A temporary key is handed to the
// next read only.
type PlaygroundKeyRequest struct {
	APIKey    string `json:"api_key" validate:"required"`
	Temporary bool   `json:"temporary"`
}

var errNotForTenant = errors.Wrap(apperrors.ErrNotFound, "store not available for this tenant")

// movieHandler resolves the runtime and requires the consumer site stores
func (s *Server) movieHandler(fn func(w http.ResponseWriter, r *http.Request, rt *Runtime)) http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		if rt.Movies == nil || rt.Onboarding == nil {
			writeAppError(w, errNotForTenant)
			return
		}
		fn(w, r, rt)
	})
}

func (s *Server) FiltersHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		writeJSON(w, http.StatusOK, rt.Movies.Filters())
	})
}

// UpdateFiltersHandler applies a FiltersPatch and answers with the resulting filters
func (s *Server) UpdateFiltersHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		var patch FiltersPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(patch); err != nil {
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		if patch.Time != nil {
			rt.Movies.SetTime(*patch.Time)
		}
		if patch.ToggleGenre != "" {
			rt.Movies.ToggleGenre(patch.ToggleGenre)
		}
		if patch.ExcludeAdult != nil {
			rt.Movies.SetExcludeAdult(*patch.ExcludeAdult)
		}
		writeJSON(w, http.StatusOK, rt.Movies.Filters())
	})
}

func (s *Server) ResetFiltersHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		rt.Movies.ResetFilters()
		writeJSON(w, http.StatusOK, rt.Movies.Filters())
	})
}

func (s *Server) RecommendationsHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		rec, found, err := rt.Movies.LastRecommendations(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !found {
			writeJSONError(w, "no cached recommendations", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

// SaveRecommendationsHandler caches a result for the signed in user, 401 without one
func (s *Server) SaveRecommendationsHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		var req RecommendationsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		saved, err := rt.Movies.SaveRecommendations(r.Context(), req.TrackA, req.TrackB, req.SessionID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !saved {
			writeAppError(w, apperrors.ErrNoSession)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) OnboardingHandler() http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		writeJSON(w, http.StatusOK, rt.Onboarding.State())
	})
}

// onboardingChange wraps a mutation of the onboarding selection. Mutations that
// take an id read it from the {id} path segment.
func (s *Server) onboardingChange(change func(r *http.Request, o *stores.OnboardingStore, id int) error) http.HandlerFunc {
	return s.movieHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		id := 0
		if raw := r.PathValue("id"); raw != "" {
			var err error
			if id, err = strconv.Atoi(raw); err != nil {
				writeJSONError(w, "id must be a number", http.StatusBadRequest)
				return
			}
		}
		if err := change(r, rt.Onboarding, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.Onboarding.State())
	})
}

func (s *Server) ToggleOTTHandler() http.HandlerFunc {
	return s.onboardingChange(func(r *http.Request, o *stores.OnboardingStore, id int) error {
		return o.ToggleOTT(r.Context(), id)
	})
}

func (s *Server) ClearOTTHandler() http.HandlerFunc {
	return s.onboardingChange(func(r *http.Request, o *stores.OnboardingStore, _ int) error {
		return o.ClearOTTList(r.Context())
	})
}

func (s *Server) AddLikedMovieHandler() http.HandlerFunc {
	return s.onboardingChange(func(r *http.Request, o *stores.OnboardingStore, id int) error {
		return o.AddLikedMovie(r.Context(), id)
	})
}

func (s *Server) RemoveLikedMovieHandler() http.HandlerFunc {
	return s.onboardingChange(func(r *http.Request, o *stores.OnboardingStore, id int) error {
		return o.RemoveLikedMovie(r.Context(), id)
	})
}

func (s *Server) ClearLikedMoviesHandler() http.HandlerFunc {
	return s.onboardingChange(func(r *http.Request, o *stores.OnboardingStore, _ int) error {
		return o.ClearMovieSelection(r.Context())
	})
}

// playgroundHandler resolves the runtime and requires the console store
func (s *Server) playgroundHandler(fn func(w http.ResponseWriter, r *http.Request, rt *Runtime)) http.HandlerFunc {
	return s.tenantHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		if rt.Playground == nil {
			writeAppError(w, errNotForTenant)
			return
		}
		fn(w, r, rt)
	})
}

// PlaygroundKeyHandler returns the handed over key once, else the saved key
func (s *Server) PlaygroundKeyHandler() http.HandlerFunc {
	return s.playgroundHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		key, found, err := rt.Playground.Key(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !found {
			writeJSONError(w, "no api key", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
	})
}

func (s *Server) SavePlaygroundKeyHandler() http.HandlerFunc {
	return s.playgroundHandler(func(w http.ResponseWriter, r *http.Request, rt *Runtime) {
		var req PlaygroundKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		save := rt.Playground.SaveKey
		if req.Temporary {
			save = rt.Playground.HandOver
		}
		if err := save(r.Context(), req.APIKey); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
