// Package manager implements the connection manager: a named adapter
// registry with concurrent connect/disconnect sweeps, default-connection
// resolution, tag/type filtering, and aggregate statistics.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// Manager holds the registry of named, live adapters.
type Manager struct {
	logger *zap.Logger

	mu                sync.RWMutex
	adapters          map[string]dbadapter.Adapter
	configs           map[string]dbadapter.ConnectionConfig
	defaultConnection string
}

// New builds an empty Manager. Adapters are registered via Add before
// ConnectAll is called.
func New(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger.Named("manager"),
		adapters: make(map[string]dbadapter.Adapter),
		configs:  make(map[string]dbadapter.ConnectionConfig),
	}
}

// Add registers an unconnected adapter under name. It does not connect it;
// that happens in ConnectAll.
func (m *Manager) Add(name string, adapter dbadapter.Adapter, cfg dbadapter.ConnectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[name] = adapter
	m.configs[name] = cfg
}

// SetDefaultConnection sets the pool resolved by GetConnection("") /
// GetConnection. It rejects names that aren't registered.
func (m *Manager) SetDefaultConnection(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[name]; !ok {
		return fmt.Errorf("database connection '%s' not found", name)
	}
	m.defaultConnection = name
	return nil
}

// ConnectAll connects every registered adapter concurrently. If any one
// fails, the overall call fails naming the offending pool; adapters that
// already connected are left connected, and the caller owns cleanup via
// DisconnectAll.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.adapters))
	adapters := make(map[string]dbadapter.Adapter, len(m.adapters))
	for name, a := range m.adapters {
		names = append(names, name)
		adapters[name] = a
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name, adapter := name, adapters[name]
		g.Go(func() error {
			if err := adapter.Connect(gctx); err != nil {
				return fmt.Errorf("pool '%s': %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("connectAll failed: %w", err)
	}
	m.logger.Info("all pools connected", zap.Int("count", len(names)))
	return nil
}

// DisconnectAll disconnects every adapter concurrently. Individual failures
// are logged but never abort the sweep; the registry is cleared only after
// every adapter has been given the chance to disconnect.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.Lock()
	adapters := make(map[string]dbadapter.Adapter, len(m.adapters))
	for name, a := range m.adapters {
		adapters[name] = a
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for name, adapter := range adapters {
		wg.Add(1)
		go func(name string, adapter dbadapter.Adapter) {
			defer wg.Done()
			if err := adapter.Disconnect(ctx); err != nil {
				m.logger.Error("disconnect failed", zap.String("pool", name), zap.Error(err))
			}
		}(name, adapter)
	}
	wg.Wait()

	m.mu.Lock()
	m.adapters = make(map[string]dbadapter.Adapter)
	m.configs = make(map[string]dbadapter.ConnectionConfig)
	m.mu.Unlock()
}

// GetConnection resolves name, falling back to the configured default
// connection when name is empty.
func (m *Manager) GetConnection(name string) (dbadapter.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved := name
	if resolved == "" {
		resolved = m.defaultConnection
	}
	if resolved == "" {
		return nil, fmt.Errorf("No connection name specified and no default connection configured")
	}
	adapter, ok := m.adapters[resolved]
	if !ok {
		return nil, fmt.Errorf("Database connection '%s' not found. Available: %s", resolved, m.availableNamesLocked())
	}
	return adapter, nil
}

func (m *Manager) availableNamesLocked() string {
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// GetConnectionNames returns every registered pool name.
func (m *Manager) GetConnectionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthResult pairs a pool name with its health outcome.
type HealthResult struct {
	Name   string
	Status dbadapter.HealthStatus
}

// HealthCheckAll invokes every adapter's health check in parallel; a failing
// adapter is converted into a {isHealthy:false} entry so one bad pool never
// hides the others.
func (m *Manager) HealthCheckAll(ctx context.Context) []HealthResult {
	m.mu.RLock()
	names := make([]string, 0, len(m.adapters))
	adapters := make(map[string]dbadapter.Adapter, len(m.adapters))
	for name, a := range m.adapters {
		names = append(names, name)
		adapters[name] = a
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make([]HealthResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = HealthResult{Name: name, Status: dbadapter.HealthStatus{IsHealthy: false, Error: fmt.Sprintf("panic: %v", r)}}
				}
			}()
			results[i] = HealthResult{Name: name, Status: adapters[name].HealthCheck(ctx)}
		}(i, name)
	}
	wg.Wait()
	return results
}

// GetConnectionsByTag returns the names of pools whose configured tags
// include tag.
func (m *Manager) GetConnectionsByTag(tag string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, cfg := range m.configs {
		for _, t := range cfg.Tags {
			if t == tag {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// GetConnectionsByType returns the names of currently connected pools of
// the given engine type.
func (m *Manager) GetConnectionsByType(t dbadapter.Type) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, adapter := range m.adapters {
		if adapter.Type() == t && adapter.GetConnectionStatus().IsConnected {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Statistics is the aggregate connection-registry view: counts by type and
// by tag, plus an optimistic healthyConnections count equal to the registry
// size (precise liveness requires HealthCheckAll).
type Statistics struct {
	TotalConnections   int
	HealthyConnections int
	ByType             map[dbadapter.Type]int
	ByTag              map[string]int
	DefaultConnection  string
}

// GetStatistics aggregates counts across the registry.
func (m *Manager) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		TotalConnections:   len(m.adapters),
		HealthyConnections: len(m.adapters),
		ByType:             make(map[dbadapter.Type]int),
		ByTag:              make(map[string]int),
		DefaultConnection:  m.defaultConnection,
	}
	for name, adapter := range m.adapters {
		stats.ByType[adapter.Type()]++
		for _, t := range m.configs[name].Tags {
			stats.ByTag[t]++
		}
	}
	return stats
}

// ConnectionInfos returns the secret-free connection info for every
// registered pool, for the database://connections resource.
func (m *Manager) ConnectionInfos() []dbadapter.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]dbadapter.ConnectionInfo, 0, len(names))
	for _, name := range names {
		out = append(out, m.adapters[name].GetConnectionInfo())
	}
	return out
}
