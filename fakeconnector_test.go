package dbmcp_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	dbmcp "github.com/querytools/db-mcp"
)

// executeCall records one Execute invocation as seen at the connector
// boundary, so tests can assert SQL text is never rewritten and params
// arrive as values.
type executeCall struct {
	sql      string
	params   []any
	rowLimit int
}

// fakeConnector is a scripted Connector used to exercise the executor,
// explorer, lifecycle manager, and dispatcher without a database.
type fakeConnector struct {
	engine dbmcp.Engine

	pingResult *dbmcp.PingResult
	pingErr    error

	executeResult *dbmcp.ResultSet
	executeErr    error
	executeCalls  []executeCall

	schemas    []string
	tables     map[string][]dbmcp.TableEntry
	schemaErrs map[string]error

	closeCount int
}

func (f *fakeConnector) EngineKind() dbmcp.Engine {
	if f.engine == "" {
		return dbmcp.EnginePostgres
	}
	return f.engine
}

func (f *fakeConnector) Ping(ctx context.Context) (*dbmcp.PingResult, error) {
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	if f.pingResult != nil {
		return f.pingResult, nil
	}
	return &dbmcp.PingResult{Latency: 3 * time.Millisecond, ServerVersion: "FakeDB 1.0"}, nil
}

func (f *fakeConnector) Execute(ctx context.Context, sql string, params []any, rowLimit int) (*dbmcp.ResultSet, error) {
	f.executeCalls = append(f.executeCalls, executeCall{sql: sql, params: params, rowLimit: rowLimit})
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	result := f.executeResult
	if result == nil {
		result = &dbmcp.ResultSet{Columns: []dbmcp.Column{}, Rows: [][]any{}}
	}
	// Honor the materialization cap the way real connectors do.
	if rowLimit > 0 && len(result.Rows) > rowLimit {
		capped := *result
		capped.Rows = result.Rows[:rowLimit]
		capped.Truncated = true
		return &capped, nil
	}
	return result, nil
}

func (f *fakeConnector) ListSchemas(ctx context.Context) ([]string, error) {
	return f.schemas, nil
}

func (f *fakeConnector) ListTables(ctx context.Context, schema string, exact bool) ([]dbmcp.TableEntry, error) {
	if err, ok := f.schemaErrs[schema]; ok {
		return nil, err
	}
	return f.tables[schema], nil
}

func (f *fakeConnector) Close(ctx context.Context) error {
	f.closeCount++
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() dbmcp.Config {
	return dbmcp.Config{
		Connection: dbmcp.ConnectionConfig{Engine: dbmcp.EnginePostgres},
	}
}

// newTestEngine wires a DBMcp to the given fake via the dial seam.
func newTestEngine(t *testing.T, config dbmcp.Config, fake *fakeConnector) *dbmcp.DBMcp {
	t.Helper()
	d := dbmcp.NewWithDial(config, func(ctx context.Context) (dbmcp.Connector, error) {
		return fake, nil
	}, testLogger())
	t.Cleanup(func() { d.Close(context.Background()) })
	return d
}

// newUntouchableEngine fails the test if anything tries to reach the
// database. Used to prove validation errors never touch a connection.
func newUntouchableEngine(t *testing.T, config dbmcp.Config) *dbmcp.DBMcp {
	t.Helper()
	d := dbmcp.NewWithDial(config, func(ctx context.Context) (dbmcp.Connector, error) {
		t.Fatal("dial called: validation should fail before any connection is made")
		return nil, nil
	}, testLogger())
	t.Cleanup(func() { d.Close(context.Background()) })
	return d
}
