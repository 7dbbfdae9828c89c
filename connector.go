package dbmcp

import (
	"context"
	"time"
)

// Engine identifies the database engine served by a process instance.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineVertica  Engine = "vertica"
)

// Column is one result column with its engine-reported type name.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultSet is the backend-agnostic tabular shape every connector produces.
type ResultSet struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
	// Truncated is set when row materialization stopped at the caller's limit.
	Truncated bool
}

// PingResult reports connectivity probe details.
type PingResult struct {
	Latency       time.Duration
	ServerVersion string
	User          string
	Database      string
	TableCount    int64
}

// TableEntry is one table in a schema listing. Row counts come from the
// engine's catalog statistics and may be stale; that is an accepted
// approximation, not a bug (exact counts are opt-in via config).
type TableEntry struct {
	Schema      string `json:"schema"`
	Name        string `json:"table"`
	ApproxRows  int64  `json:"approx_rows"`
	ColumnCount int    `json:"column_count"`
}

// Connector is the capability set each engine variant implements:
// connect/ping, execute, introspect. Implementations bind parameters
// through the driver's native mechanism — never string interpolation —
// and translate every engine-native error into the shared taxonomy at
// this boundary. Nothing above a Connector inspects driver error types.
//
// A Connector wraps exactly one live session and is not safe for
// concurrent statement execution; the lifecycle Manager serializes access.
type Connector interface {
	EngineKind() Engine

	// Ping measures round-trip latency and fetches server identity.
	Ping(ctx context.Context) (*PingResult, error)

	// Execute runs sql with positionally bound params. rowLimit > 0 caps
	// materialized rows; the statement itself is not rewritten, so
	// non-row-returning statements are unaffected.
	Execute(ctx context.Context, sql string, params []any, rowLimit int) (*ResultSet, error)

	// ListSchemas returns user-visible schema names in arbitrary order.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables enumerates tables in one schema with catalog-statistics
	// row counts, or COUNT(*) when exact is set.
	ListTables(ctx context.Context, schema string, exact bool) ([]TableEntry, error)

	// Close tears down the session. Safe to call more than once.
	Close(ctx context.Context) error
}
