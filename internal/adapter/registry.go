package adapter

import (
	"fmt"
	"sync"

	"lab-device-hub/internal/domain/device"
	apperrors "lab-device-hub/pkg/errors"
)

// Registry maps a declared transport kind to the adapter responsible
// for it. All device operations route through the matching adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[device.TransportKind]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[device.TransportKind]Adapter),
	}
}

// Register binds an adapter to its transport kind. Re-registering a
// kind replaces the previous adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for a transport kind. A missing adapter
// for a declared kind is a wiring fault and aborts the operation.
func (r *Registry) Lookup(kind device.TransportKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAdapterNotFound, kind)
	}
	return a, nil
}

// Kinds lists the registered transport kinds.
func (r *Registry) Kinds() []device.TransportKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]device.TransportKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
