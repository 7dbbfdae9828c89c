package dbmcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// PostgresConnector implements Connector for PostgreSQL using pgx.
// The pool is capped at one connection: the process owns a single
// database session, serialized by the lifecycle Manager.
type PostgresConnector struct {
	pool *pgxpool.Pool
}

// NewPostgresConnector opens and validates a PostgreSQL session.
func NewPostgresConnector(ctx context.Context, dsn string) (*PostgresConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, NewConnectionError(ConnKindUnknown, "invalid postgres connection parameters")
	}
	poolConfig.MaxConns = 1
	poolConfig.MinConns = 0
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, classifyPgConnectErr(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPgConnectErr(err)
	}
	return &PostgresConnector{pool: pool}, nil
}

func (c *PostgresConnector) EngineKind() Engine { return EnginePostgres }

const pgPingSQL = `SELECT current_user, current_database(), version()`

const pgTableCountSQL = `
SELECT count(*)
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')`

func (c *PostgresConnector) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	var result PingResult
	err := c.pool.QueryRow(ctx, pgPingSQL).Scan(&result.User, &result.Database, &result.ServerVersion)
	result.Latency = time.Since(start)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	if err := c.pool.QueryRow(ctx, pgTableCountSQL).Scan(&result.TableCount); err != nil {
		return nil, classifyPgErr(err)
	}
	return &result, nil
}

func (c *PostgresConnector) Execute(ctx context.Context, sql string, params []any, rowLimit int) (*ResultSet, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, params...)
	if err != nil {
		return nil, classifyPgErr(err)
	}

	result, err := c.collectRows(conn.Conn().TypeMap(), rows, rowLimit)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	return result, nil
}

// collectRows materializes rows up to rowLimit. The cap lives here, at
// the materialization boundary, so an accidental full-table scan cannot
// grow process memory past the limit.
func (c *PostgresConnector) collectRows(typeMap *pgtype.Map, rows pgx.Rows, rowLimit int) (*ResultSet, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]Column, len(fieldDescs))
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if dt, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = dt.Name
		}
		columns[i] = Column{Name: fd.Name, Type: typeName}
	}

	result := &ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if rowLimit > 0 && len(result.Rows) >= rowLimit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = pgConvertValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

const pgListSchemasSQL = `
SELECT n.nspname
FROM pg_catalog.pg_namespace n
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND n.nspname NOT LIKE 'pg_temp_%'
  AND n.nspname NOT LIKE 'pg_toast_temp_%'`

func (c *PostgresConnector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, pgListSchemasSQL)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classifyPgErr(err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgErr(err)
	}
	return schemas, nil
}

// pgListTablesSQL uses pg_class.reltuples for row counts: catalog
// statistics, cheap on large tables, possibly stale.
const pgListTablesSQL = `
SELECT c.relname,
       GREATEST(c.reltuples, 0)::bigint AS approx_rows,
       (SELECT count(*)
          FROM pg_catalog.pg_attribute a
         WHERE a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped) AS column_count
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1
  AND c.relkind IN ('r', 'p')
ORDER BY c.relname`

func (c *PostgresConnector) ListTables(ctx context.Context, schema string, exact bool) ([]TableEntry, error) {
	var usable bool
	if err := c.pool.QueryRow(ctx, `SELECT has_schema_privilege($1, 'USAGE')`, schema).Scan(&usable); err != nil {
		return nil, classifyPgErr(err)
	}
	if !usable {
		return nil, NewQueryError(QueryKindPermission, "no USAGE privilege on schema %q", schema)
	}

	rows, err := c.pool.Query(ctx, pgListTablesSQL, schema)
	if err != nil {
		return nil, classifyPgErr(err)
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		entry := TableEntry{Schema: schema}
		if err := rows.Scan(&entry.Name, &entry.ApproxRows, &entry.ColumnCount); err != nil {
			return nil, classifyPgErr(err)
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgErr(err)
	}

	if exact {
		for i := range tables {
			ident := pgx.Identifier{schema, tables[i].Name}.Sanitize()
			var count int64
			if err := c.pool.QueryRow(ctx, "SELECT count(*) FROM "+ident).Scan(&count); err != nil {
				// Statistics stay in place for tables we cannot count.
				continue
			}
			tables[i].ApproxRows = count
		}
	}
	return tables, nil
}

func (c *PostgresConnector) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

// pgStatementReturnsRows reports whether sql is a row-returning statement
// (SELECT/VALUES/EXPLAIN/SHOW, or DML with RETURNING). Row limits apply
// only to these; for DDL and plain DML the limit is a no-op. Uses the
// actual PostgreSQL parser via pg_query, never our own SQL parsing.
func pgStatementReturnsRows(sql string) bool {
	result, err := pg_query.Parse(sql)
	if err != nil || len(result.Stmts) == 0 {
		// Let the server decide; cap applies if rows come back.
		return true
	}
	switch node := result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt, *pg_query.Node_ExplainStmt, *pg_query.Node_VariableShowStmt:
		return true
	case *pg_query.Node_InsertStmt:
		return len(node.InsertStmt.ReturningList) > 0
	case *pg_query.Node_UpdateStmt:
		return len(node.UpdateStmt.ReturningList) > 0
	case *pg_query.Node_DeleteStmt:
		return len(node.DeleteStmt.ReturningList) > 0
	default:
		return false
	}
}

// classifyPgConnectErr maps connection-establishment failures. Raw driver
// error text may embed the DSN, so messages here are engine-neutral.
func classifyPgConnectErr(err error) *Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01":
			return NewConnectionError(ConnKindAuthFailed, "authentication failed")
		case "3D000":
			return NewConnectionError(ConnKindNotFound, "database does not exist")
		}
		return NewConnectionError(ConnKindUnknown, "connection rejected by server (%s)", pgErr.Code)
	}
	if e := classifyDialErr(err); e != nil {
		return e
	}
	return NewConnectionError(ConnKindUnknown, "failed to establish database connection").markConnLost()
}

// classifyPgErr translates pgx/pgconn errors into the shared taxonomy.
// PgError messages are server-generated statement diagnostics and safe
// to surface; everything else gets a generic message.
func classifyPgErr(err error) *Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		switch {
		case pgErr.Code == "57014":
			return NewQueryError(QueryKindTimeout, "%s", msg)
		case pgErr.Code == "42601":
			return NewQueryError(QueryKindSyntax, "%s", msg)
		case pgErr.Code == "42501":
			return NewQueryError(QueryKindPermission, "%s", msg)
		case strings.HasPrefix(pgErr.Code, "28"):
			return NewConnectionError(ConnKindAuthFailed, "authentication failed").markConnLost()
		case pgErr.Code == "3D000":
			return NewConnectionError(ConnKindNotFound, "database does not exist").markConnLost()
		case strings.HasPrefix(pgErr.Code, "08"):
			return NewConnectionError(ConnKindUnreachable, "server closed the connection").markConnLost()
		case strings.HasPrefix(pgErr.Code, "57P"):
			// admin shutdown / crash shutdown / cannot connect now
			return NewConnectionError(ConnKindUnreachable, "server is shutting down").markConnLost()
		default:
			return NewQueryError(QueryKindRuntime, "%s", msg)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewQueryError(QueryKindTimeout, "statement timed out")
	}
	if errors.Is(err, context.Canceled) {
		return NewQueryError(QueryKindRuntime, "statement cancelled")
	}
	if pgconn.SafeToRetry(err) {
		return NewConnectionError(ConnKindUnreachable, "connection to server was lost").markConnLost()
	}
	if e := classifyDialErr(err); e != nil {
		return e
	}
	if strings.Contains(err.Error(), "conn closed") || strings.Contains(err.Error(), "closed pool") {
		return NewConnectionError(ConnKindUnreachable, "connection to server was lost").markConnLost()
	}
	return NewQueryError(QueryKindUnknown, "statement execution failed")
}

// pgConvertValue converts a pgx-returned value to a JSON-friendly Go type.
func pgConvertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		return normalizeFloat(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = pgConvertValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = pgConvertValue(item)
		}
		return result
	default:
		return val
	}
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

func formatInterval(val pgtype.Interval) string {
	var parts []string
	if val.Months != 0 {
		years := val.Months / 12
		months := val.Months % 12
		if years != 0 {
			parts = append(parts, fmt.Sprintf("%d year(s)", years))
		}
		if months != 0 {
			parts = append(parts, fmt.Sprintf("%d mon(s)", months))
		}
	}
	if val.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
	}
	if val.Microseconds != 0 {
		parts = append(parts, (time.Duration(val.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}
