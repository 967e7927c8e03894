package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/conf"
)

const (
	poolWatchTick   = 100 * time.Millisecond
	poolWatchWindow = 10 * time.Second
)

// Manager opens the database on first use. Callers that race on the first
// request share a single initialization, and a failed initialization is
// retried by the next caller.
type Manager struct {
	config *conf.GlobalConfiguration
	models []interface{}

	mu     sync.Mutex
	conn   atomic.Pointer[Connection]
	cancel context.CancelFunc
}

// NewManager returns a Manager that has not connected yet. models are the
// structs whose tables are checked by schema repair.
func NewManager(config *conf.GlobalConfiguration, models ...interface{}) *Manager {
	return &Manager{config: config, models: models}
}

// NewManagerWithConnection wraps an already open connection.
func NewManagerWithConnection(config *conf.GlobalConfiguration, conn *Connection) *Manager {
	m := NewManager(config)
	m.conn.Store(conn)
	return m
}

// Configured reports whether a database URL is set at all.
func (m *Manager) Configured() bool {
	return m.config.DB.Configured()
}

// Initialized reports whether a connection has been established.
func (m *Manager) Initialized() bool {
	return m.conn.Load() != nil
}

// Connection returns the shared connection, connecting, creating tables and
// repairing the schema on first use.
func (m *Manager) Connection(ctx context.Context) (*Connection, error) {
	if conn := m.conn.Load(); conn != nil {
		return conn, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conn := m.conn.Load(); conn != nil {
		return conn, nil
	}

	if !m.config.DB.Configured() {
		return nil, ErrDatabaseNotConfigured
	}

	log := logrus.WithField("component", "db")
	started := time.Now()

	conn, err := DialContext(ctx, m.config)
	if err != nil {
		return nil, err
	}

	count, err := Migrate(conn.WithContext(ctx))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.WithField("count", count).Info("database tables ready")

	if m.config.DB.SchemaRepair {
		RepairSchema(ctx, conn, m.models...)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	if !m.config.Lambda.Enabled {
		w := newPoolWatcher(conn.Stats, func(p PoolPressure) {
			log.WithFields(logrus.Fields{
				"slow_ticks":           p.SlowTicks,
				"crowded_ticks":        p.CrowdTicks,
				"window_ticks":         p.WindowTicks,
				"max_open_connections": p.MaxOpen,
			}).Warn("database connection pool looks undersized, consider raising DB_MAX_POOL_SIZE")
		}, poolWatchTick, poolWatchWindow)
		go w.run(watchCtx)
	}

	m.conn.Store(conn)
	log.WithField("duration", time.Since(started).String()).Info("database initialized")

	return conn, nil
}

// Health pings the database, connecting first if needed.
func (m *Manager) Health(ctx context.Context) error {
	conn, err := m.Connection(ctx)
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// Close releases the pool. The next Connection call reconnects.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	conn := m.conn.Swap(nil)
	if conn == nil {
		return nil
	}
	return errors.Wrap(conn.Close(), "closing database connection")
}
