package datasource

import (
	"context"
	"sort"
	"sync"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// Opener opens a pool for a configured database.
type Opener func(ctx context.Context, cfg DatabaseConfig, settings PoolSettings) (PoolConnector, error)

// AdapterRegistration contains info plus the opener for an adapter type.
type AdapterRegistration struct {
	Info AdapterInfo
	// Aliases are extra type names resolving to this adapter, e.g. "sqlserver".
	Aliases []string
	Open    Opener
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
	for _, alias := range reg.Aliases {
		registry[alias] = reg
	}
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		if seen[reg.Info.Type] {
			continue
		}
		seen[reg.Info.Type] = true
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetOpener returns the opener for a datasource type.
// Returns nil if type is not registered.
func GetOpener(dsType string) Opener {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Open
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
