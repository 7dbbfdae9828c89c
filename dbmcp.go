package dbmcp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/querytools/db-mcp/internal/sanitize"
	"github.com/querytools/db-mcp/internal/timeout"
)

// DBMcp is the core engine that provides TestConnection, Query, and
// ListTables tools over one database engine. All exported methods are
// safe for concurrent use; statement execution on the single session is
// serialized by the lifecycle Manager.
type DBMcp struct {
	config     Config
	manager    *Manager
	scrubber   *sanitize.Scrubber
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
	engine     Engine
}

// New creates a new DBMcp instance. The database session is established
// lazily on the first tool call that needs it, not here.
// Panics on invalid config. Returns error only for unresolvable
// connection parameters.
func New(config Config, logger zerolog.Logger) (*DBMcp, error) {
	applyDefaults(&config)

	if config.Query.DefaultRowLimit <= 0 {
		panic("dbmcp: query.default_row_limit must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("dbmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.MaxSQLLength <= 0 {
		panic("dbmcp: query.max_sql_length must be > 0")
	}
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("dbmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	dsn, err := config.Connection.dsn()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection parameters: %w", err)
	}

	engine := config.Connection.Engine
	dial := func(ctx context.Context) (Connector, error) {
		switch engine {
		case EnginePostgres:
			return NewPostgresConnector(ctx, dsn)
		case EngineVertica:
			return NewVerticaConnector(ctx, dsn)
		default:
			return nil, NewConnectionError(ConnKindUnknown, "unknown engine kind %q", engine)
		}
	}
	if engine != EnginePostgres && engine != EngineVertica {
		return nil, fmt.Errorf("unknown engine kind %q", engine)
	}

	return NewWithDial(config, dial, logger), nil
}

// NewWithDial creates a DBMcp with a custom dial function. This is the
// seam that lets tests run the whole stack against a fake Connector.
// Panics on invalid config.
func NewWithDial(config Config, dial DialFunc, logger zerolog.Logger) *DBMcp {
	applyDefaults(&config)

	scrubber, err := sanitize.NewScrubber(nil)
	if err != nil {
		panic(fmt.Sprintf("dbmcp: %v", err))
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr := timeout.NewManager(timeout.Config{
		DefaultQuery: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		ListTables:   time.Duration(config.Query.ListTablesTimeoutSeconds) * time.Second,
		Ping:         time.Duration(config.Query.PingTimeoutSeconds) * time.Second,
		Rules:        timeoutRules,
	})

	connectTimeout := time.Duration(config.Connection.ConnectTimeoutSeconds) * time.Second

	return &DBMcp{
		config:     config,
		manager:    NewManager(dial, connectTimeout, logger),
		scrubber:   scrubber,
		timeoutMgr: tmgr,
		logger:     logger,
		engine:     config.Connection.Engine,
	}
}

func applyDefaults(config *Config) {
	if config.Query.DefaultRowLimit == 0 {
		config.Query.DefaultRowLimit = defaultRowLimit
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = defaultQueryTimeout
	}
	if config.Query.ListTablesTimeoutSeconds == 0 {
		config.Query.ListTablesTimeoutSeconds = defaultListTimeout
	}
	if config.Query.PingTimeoutSeconds == 0 {
		config.Query.PingTimeoutSeconds = defaultPingTimeout
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if config.Connection.ConnectTimeoutSeconds == 0 {
		config.Connection.ConnectTimeoutSeconds = defaultConnectTimeout
	}
}

// Close releases the database session. Idempotent.
func (d *DBMcp) Close(ctx context.Context) {
	d.manager.Release(ctx)
}

// handleError sanitizes, logs, and classifies any failure before it can
// cross the protocol boundary.
func (d *DBMcp) handleError(op string, err error) *Error {
	e := AsError(err)
	e.Message = d.scrubber.Scrub(e.Message)
	d.logger.Error().
		Str("op", op).
		Str("error_class", string(e.Taxonomy)).
		Str("error_kind", e.Kind).
		Msg(e.Message)
	return e
}
