// Package registry lets components publish named capabilities that other
// components look up at runtime instead of importing the provider.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound   = errors.New("capability not registered")
	ErrDuplicate  = errors.New("capability already registered")
	ErrWrongShape = errors.New("capability has unexpected type")
)

type Registry struct {
	mu   sync.RWMutex
	caps map[string]any
}

func New() *Registry {
	return &Registry{caps: make(map[string]any)}
}

// Register publishes capability under name. Names are registered once.
func (r *Registry) Register(name string, capability any) error {
	if name == "" || capability == nil {
		return fmt.Errorf("register %q: name and capability are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.caps[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}
	r.caps[name] = capability
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves name and asserts it to T.
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("lookup %q: %w: %T", name, ErrWrongShape, c)
	}
	return t, nil
}
