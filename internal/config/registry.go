package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/livevoice/pkg/live"
)

// ErrBackendNotRegistered is returned by [Registry.CreateConnector] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// ConnectorFactory builds a connector from the live section of the config.
type ConnectorFactory func(LiveConfig) (live.Connector, error)

// Registry maps backend names to connector factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ConnectorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ConnectorFactory)}
}

// Register adds factory under name. Subsequent calls with the same name
// overwrite the previous registration.
func (r *Registry) Register(name string, factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateConnector instantiates the connector named by cfg.Backend.
func (r *Registry) CreateConnector(cfg LiveConfig) (live.Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	c, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create %q connector: %w", cfg.Backend, err)
	}
	return c, nil
}
