package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/resource-engine/pkg/logging"
	"github.com/ekaya-inc/resource-engine/pkg/retry"
	sqlgen "github.com/ekaya-inc/resource-engine/pkg/sql"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager keeps one pool per configured database, opening pools on
// first use and closing them after TTL of inactivity.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ManagedConnection // key: database name
	databases   map[string]DatabaseConfig
	ttl         time.Duration
	settings    PoolSettings
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

// ManagedConnection is an open pool with its last use time.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex // Per-connection mutex to prevent concurrent access issues
}

var (
	_ Provider               = (*ConnectionManager)(nil)
	_ sqlgen.DialectResolver = (*ConnectionManager)(nil)
	_ Conn                   = (*sql.Conn)(nil)
)

// NewConnectionManager creates a connection manager for the given databases.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, databases map[string]DatabaseConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbs := make(map[string]DatabaseConfig, len(databases))
	for name, db := range databases {
		db.Name = name
		dbs[name] = db
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	manager := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		databases:   dbs,
		ttl:         ttl,
		settings: PoolSettings{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnIdleTime: ttl,
		},
		stopChan: make(chan struct{}),
		logger:   logger.Named("datasource"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// Acquire returns a dedicated connection to database. Closing it returns it
// to the pool.
func (m *ConnectionManager) Acquire(ctx context.Context, database string) (Conn, error) {
	db, err := m.GetOrCreateDB(ctx, database)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection to %s: %w", database, err)
	}
	return conn, nil
}

// DialectFor returns the SQL dialect of a configured database, Postgres when unknown.
func (m *ConnectionManager) DialectFor(database string) *sqlgen.Dialect {
	m.mu.RLock()
	cfg, ok := m.databases[database]
	m.mu.RUnlock()
	if !ok {
		return sqlgen.Postgres
	}
	return sqlgen.DialectFor(cfg.Type)
}

// Databases returns the names of the configured databases.
func (m *ConnectionManager) Databases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	return names
}

// GetOrCreateDB gets or creates the pool for database.
// An existing pool is health-checked and recreated when unhealthy.
func (m *ConnectionManager) GetOrCreateDB(ctx context.Context, database string) (*sql.DB, error) {
	// Try existing connection with read lock (fast path)
	m.mu.RLock()
	managed, exists := m.connections[database]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		// Health check with retry and timeout
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.connector.Ping(healthCtx)
		})

		if err != nil {
			// Unhealthy - log sanitized error, remove, and recreate
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("database", database),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock() // Unlock before calling removeConnection
			m.removeConnection(database)
			return m.createNewPool(ctx, database)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector.DB(), nil
	}

	return m.createNewPool(ctx, database)
}

// createNewPool opens the pool for database with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createNewPool(ctx context.Context, database string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := m.connections[database]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector.DB(), nil
	}

	cfg, ok := m.databases[database]
	if !ok {
		return nil, fmt.Errorf("database %q is not configured", database)
	}
	open := GetOpener(cfg.Type)
	if open == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", cfg.Type)
	}

	// Only transient failures are retried; bad credentials fail at once.
	connector, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return open(ctx, cfg, m.settings)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("database", database),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", database, err)
	}

	m.connections[database] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("database", database),
		zap.String("type", connector.GetType()),
		zap.String("host", cfg.Host),
	)

	return connector.DB(), nil
}

// RegisterConnection installs an already-open pool for database, replacing
// any existing one.
func (m *ConnectionManager) RegisterConnection(database string, connector PoolConnector) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.connections[database]; ok && existing.connector != nil {
		_ = existing.connector.Close()
	}
	if _, ok := m.databases[database]; !ok {
		m.databases[database] = DatabaseConfig{Name: database, Type: connector.GetType()}
	}
	m.connections[database] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}
}

// removeConnection removes a connection from the pool and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(database string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[database]; exists && managed != nil {
		if managed.connector != nil {
			_ = managed.connector.Close()
		}
		delete(m.connections, database)
		m.logger.Debug("removed connection",
			zap.String("database", database),
		)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	expired := []string{}

	for database, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expired = append(expired, database)
			m.logger.Debug("marking connection for cleanup",
				zap.String("database", database),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, database := range expired {
		if managed := m.connections[database]; managed != nil && managed.connector != nil {
			_ = managed.connector.Close()
		}
		delete(m.connections, database)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.connector != nil {
			_ = managed.connector.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		if managed == nil {
			continue
		}
		stats.ConnectionsByType[managed.connector.GetType()]++

		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
