package provisioner

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates an adapter instance.
type Factory func() (Adapter, error)

// Registry holds adapter factories keyed by driver type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds an adapter factory for the given driver type.
func (r *Registry) Register(driverType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driverType] = factory
}

// Open constructs the adapter registered for the given driver type.
func (r *Registry) Open(driverType string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[driverType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver type: %s", driverType)
	}
	return factory()
}

// List returns the registered driver types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// defaultRegistry is the process-wide registry adapters register with from
// their init functions.
var defaultRegistry = NewRegistry()

// Register adds an adapter factory to the default registry.
func Register(driverType string, factory Factory) {
	defaultRegistry.Register(driverType, factory)
}

// Open constructs an adapter from the default registry.
func Open(driverType string) (Adapter, error) {
	return defaultRegistry.Open(driverType)
}

// List returns the driver types in the default registry, sorted.
func List() []string {
	return defaultRegistry.List()
}
