package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/feedsync/backend/internal/domain/integration"
)

// Registry holds the connectors of a process
type Registry struct {
	mu         sync.RWMutex
	connectors map[integration.ConnectorName]integration.Connector
}

// NewRegistry creates a registry with the given connectors
func NewRegistry(connectors ...integration.Connector) *Registry {
	r := &Registry{connectors: make(map[integration.ConnectorName]integration.Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a connector
func (r *Registry) Register(c integration.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

// Get returns the connector registered under name
func (r *Registry) Get(name integration.ConnectorName) (integration.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrConnectorNotFound, name)
	}
	return c, nil
}

// List returns the registered names in sorted order
func (r *Registry) List() []integration.ConnectorName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]integration.ConnectorName, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

var _ integration.ConnectorRegistry = (*Registry)(nil)
