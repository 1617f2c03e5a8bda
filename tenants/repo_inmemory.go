package tenants

import (
	"errors"
	"sort"
	"sync"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe tenant registry
type InMemoryRepo struct {
	tenants map[string]*Tenant
	lock    sync.RWMutex
}

// NewInMemoryRepo creates a registry seeded with the given tenants
func NewInMemoryRepo(seed ...*Tenant) *InMemoryRepo {
	r := &InMemoryRepo{
		tenants: make(map[string]*Tenant),
	}
	for _, t := range seed {
		r.tenants[t.ID] = t
	}
	return r
}

func (tr *InMemoryRepo) Upsert(tenantData *Tenant) error {
	if tenantData == nil || tenantData.ID == "" {
		return errors.New("tenant id is required")
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.tenants[tenantData.ID] = tenantData
	return nil
}

func (tr *InMemoryRepo) Delete(tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *InMemoryRepo) Get(tenantID string) (*Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	return t, nil
}

func (tr *InMemoryRepo) List(offset, limit int) ([]*Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tenants := make([]*Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		tenants = append(tenants, t)
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].ID < tenants[j].ID
	})

	if offset >= len(tenants) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(tenants) {
		end = len(tenants)
	}
	return tenants[offset:end], nil
}
