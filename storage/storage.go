// Package storage is the client side key/value persistence used by the session store
// and the dependent UI stores. It plays the role a browser's localStorage and
// sessionStorage play for the web frontends.
package storage

import (
	"context"
	"strings"
)

// Storage is a string key/value store. Get reports found=false for missing keys.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Scope selects where session data lives. Durable survives indefinitely,
// ephemeral data belongs to a "remember me" off login and is bounded by the
// session window.
type Scope string

const (
	ScopeDurable   Scope = "local"
	ScopeEphemeral Scope = "session"
)

// Namespaced prefixes every key with the given parts joined by ':'
type Namespaced struct {
	inner  Storage
	prefix string
}

var _ Storage = (*Namespaced)(nil)

// Namespace wraps s so that keys are stored as "<part>:<part>:key"
func Namespace(s Storage, parts ...string) *Namespaced {
	return &Namespaced{inner: s, prefix: strings.Join(parts, ":") + ":"}
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// Scopes is the pair of storages a tenant's session writes to
type Scopes struct {
	Durable   Storage
	Ephemeral Storage
}

// ForTenant splits backend into the durable and ephemeral scopes of one tenant
func ForTenant(backend Storage, tenantID string) Scopes {
	return Scopes{
		Durable:   Namespace(backend, "tenant", tenantID, string(ScopeDurable)),
		Ephemeral: Namespace(backend, "tenant", tenantID, string(ScopeEphemeral)),
	}
}

// Of returns the storage for scope
func (s Scopes) Of(scope Scope) Storage {
	if scope == ScopeEphemeral {
		return s.Ephemeral
	}
	return s.Durable
}
