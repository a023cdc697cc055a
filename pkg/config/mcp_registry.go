package config

import (
	"fmt"
	"sync"
)

// MCPServerRegistry stores tool-server configurations. Sealed after
// initialisation: lookups are cheap, mutation fails with ErrRegistrySealed.
type MCPServerRegistry struct {
	mu      sync.RWMutex
	sealed  bool
	servers map[string]*MCPServerConfig
}

// NewMCPServerRegistry creates a registry pre-populated with the given
// servers (may be nil). The registry starts unsealed.
func NewMCPServerRegistry(servers map[string]*MCPServerConfig) *MCPServerRegistry {
	if servers == nil {
		servers = make(map[string]*MCPServerConfig)
	}
	return &MCPServerRegistry{servers: servers}
}

// Register adds a server configuration. Fails once sealed.
func (r *MCPServerRegistry) Register(id string, server *MCPServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register MCP server %q: %w", id, ErrRegistrySealed)
	}
	if id == "" {
		return NewValidationError("mcp_server", id, "id", fmt.Errorf("id is required"))
	}
	r.servers[id] = server
	return nil
}

// Seal freezes the registry. Sealing twice is a no-op.
func (r *MCPServerRegistry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *MCPServerRegistry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get retrieves a server configuration by ID.
func (r *MCPServerRegistry) Get(serverID string) (*MCPServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	server, exists := r.servers[serverID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMCPServerNotFound, serverID)
	}
	return server, nil
}

// GetAll returns all server configurations as a copied map.
func (r *MCPServerRegistry) GetAll() map[string]*MCPServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*MCPServerConfig, len(r.servers))
	for k, v := range r.servers {
		result[k] = v
	}
	return result
}

// Has checks if a server exists in the registry.
func (r *MCPServerRegistry) Has(serverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.servers[serverID]
	return exists
}

// Len returns the number of registered servers.
func (r *MCPServerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// Reset unseals and empties the registry. Test use only.
func (r *MCPServerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = false
	r.servers = make(map[string]*MCPServerConfig)
}
