// Package tenant scopes tool permissions and memory to an isolated
// context. A tenant's registry is cloned and filtered once at
// construction and treated as immutable afterwards, so concurrent
// requests never share mutable registry state.
package tenant

import (
	"fmt"
	"sync"

	"github.com/openclaw/dispatch/internal/tools"
)

// Tenant is one isolated context: a filtered tool registry plus a
// memory namespace.
type Tenant struct {
	name  string
	tools *tools.Registry
}

// New clones the shared registry and filters it by the tenant's
// permission map. A nil permission map grants every tool.
func New(name string, shared *tools.Registry, permissions map[string]bool) *Tenant {
	clone := shared.Clone()
	if permissions != nil {
		clone.FilterByPermissions(permissions)
	}
	return &Tenant{name: name, tools: clone}
}

// Name returns the tenant identifier.
func (t *Tenant) Name() string { return t.name }

// Tools returns the tenant-scoped registry. Callers must not mutate
// it.
func (t *Tenant) Tools() *tools.Registry { return t.tools }

// Namespace returns the tenant's memory namespace.
func (t *Tenant) Namespace() string { return t.name }

// Directory keeps the known tenants. Lookup of an unknown tenant
// fails rather than silently granting the shared registry.
type Directory struct {
	mu      sync.RWMutex
	shared  *tools.Registry
	tenants map[string]*Tenant
}

// NewDirectory builds a directory over the shared registry.
func NewDirectory(shared *tools.Registry) *Directory {
	return &Directory{
		shared:  shared,
		tenants: make(map[string]*Tenant),
	}
}

// Register creates and stores a tenant.
func (d *Directory) Register(name string, permissions map[string]bool) *Tenant {
	t := New(name, d.shared, permissions)
	d.mu.Lock()
	d.tenants[name] = t
	d.mu.Unlock()
	return t
}

// Get resolves a tenant by name.
func (d *Directory) Get(name string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[name]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %q", name)
	}
	return t, nil
}
