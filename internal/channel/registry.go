package channel

import (
	"fmt"
	"sync"
)

// Registry holds the registered channel adapters. It must be created
// via NewRegistry and passed explicitly to components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Type]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct := adapter.Type()
	if !ct.Known() {
		return fmt.Errorf("unsupported channel type: %s", ct)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType Type) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channelType]
	return adapter, ok
}

// Types returns all registered channel types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Type, 0, len(r.adapters))
	for ct := range r.adapters {
		items = append(items, ct)
	}
	return items
}
