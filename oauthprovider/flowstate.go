package oauthprovider

import (
	"errors"
	"sync"
	"time"
)

// FlowState is what the gateway remembers between redirecting to a provider and
// receiving its callback. It is keyed by the state parameter.
type FlowState struct {
	TenantID    string
	Provider    string
	RedirectURI string
	ReturnURL   string
	RememberMe  bool
	CreatedAt   time.Time
}

type FlowRepo interface {
	Upsert(state string, flow *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
}

var errStateNotFound = errors.New("state not found")

// InMemoryFlowRepo is a thread-safe in-memory implementation of FlowRepo
type InMemoryFlowRepo struct {
	mu     sync.RWMutex
	states map[string]*FlowState
}

var _ FlowRepo = (*InMemoryFlowRepo)(nil)

func NewInMemoryFlowRepo() *InMemoryFlowRepo {
	return &InMemoryFlowRepo{
		states: make(map[string]*FlowState),
	}
}

// Upsert stores or updates a flow state
func (r *InMemoryFlowRepo) Upsert(state string, flow *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *flow
	r.states[state] = &cp
	return nil
}

// Get returns a copy of the flow stored under state
func (r *InMemoryFlowRepo) Get(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.states[state]
	if !exists {
		return nil, errStateNotFound
	}
	cp := *flow
	return &cp, nil
}

func (r *InMemoryFlowRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

// Prune drops flows created before cutoff and returns how many were removed
func (r *InMemoryFlowRepo) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for state, flow := range r.states {
		if flow.CreatedAt.Before(cutoff) {
			delete(r.states, state)
			n++
		}
	}
	return n
}
