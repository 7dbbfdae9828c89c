package dbmcp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DialFunc establishes a new Connector session.
type DialFunc func(ctx context.Context) (Connector, error)

// Manager owns the single live database session per process instance.
// The session is created lazily on the first operation that needs the
// database and closed exactly once, on stream shutdown or fatal
// connection error. All access is serialized: the underlying session is
// not safe for concurrent statement execution.
type Manager struct {
	mu             sync.Mutex
	dial           DialFunc
	conn           Connector
	closed         bool
	connectTimeout time.Duration
	logger         zerolog.Logger
}

// NewManager creates a Manager that dials lazily via dial.
func NewManager(dial DialFunc, connectTimeout time.Duration, logger zerolog.Logger) *Manager {
	if dial == nil {
		panic("dbmcp: dial must be non-nil")
	}
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout * time.Second
	}
	return &Manager{dial: dial, connectTimeout: connectTimeout, logger: logger}
}

// Do runs op against the live session, holding exclusive access for the
// whole operation. If op fails because the session died, the handle is
// discarded and the operation retried once on a fresh session; a second
// consecutive failure is surfaced rather than retried indefinitely.
func (m *Manager) Do(ctx context.Context, op func(Connector) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewConnectionError(ConnKindUnknown, "connection manager is closed")
	}

	conn, err := m.ensureLocked(ctx)
	if err != nil {
		return err
	}

	err = op(conn)
	if err == nil || !IsConnectionLost(err) {
		return err
	}

	// Dead session: discard and reconnect once.
	m.logger.Warn().Str("engine", string(conn.EngineKind())).Msg("connection lost, reconnecting")
	m.discardLocked(ctx)
	conn, rerr := m.ensureLocked(ctx)
	if rerr != nil {
		return rerr
	}
	return op(conn)
}

// ensureLocked returns the live handle, dialing if needed. Caller holds mu.
func (m *Manager) ensureLocked(ctx context.Context) (Connector, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	conn, err := m.dial(dialCtx)
	if err != nil {
		return nil, err
	}
	m.conn = conn
	m.logger.Info().Str("engine", string(conn.EngineKind())).Msg("database session established")
	return conn, nil
}

// discardLocked closes and drops the current handle. Caller holds mu.
func (m *Manager) discardLocked(ctx context.Context) {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("error closing dead session")
	}
	m.conn = nil
}

// Release closes the handle and marks the manager closed. Idempotent:
// calling it on an already-released manager is a no-op, not an error.
func (m *Manager) Release(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.discardLocked(ctx)
	m.logger.Info().Msg("database session released")
}
