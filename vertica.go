package dbmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	_ "github.com/vertica/vertica-sql-go"
)

// VerticaConnector implements Connector for Vertica using the
// vertica-sql-go database/sql driver. Like the postgres variant, the
// session is capped at one open connection.
type VerticaConnector struct {
	db *sql.DB
}

// NewVerticaConnector opens and validates a Vertica session.
func NewVerticaConnector(ctx context.Context, dsn string) (*VerticaConnector, error) {
	db, err := sql.Open("vertica", dsn)
	if err != nil {
		return nil, NewConnectionError(ConnKindUnknown, "invalid vertica connection parameters")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifyVerticaConnectErr(err)
	}
	return &VerticaConnector{db: db}, nil
}

func (c *VerticaConnector) EngineKind() Engine { return EngineVertica }

const verticaPingSQL = `SELECT current_user(), current_database(), version()`

const verticaTableCountSQL = `SELECT COUNT(*) FROM v_catalog.tables`

func (c *VerticaConnector) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	var result PingResult
	err := c.db.QueryRowContext(ctx, verticaPingSQL).Scan(&result.User, &result.Database, &result.ServerVersion)
	result.Latency = time.Since(start)
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	if err := c.db.QueryRowContext(ctx, verticaTableCountSQL).Scan(&result.TableCount); err != nil {
		return nil, classifyVerticaErr(err)
	}
	return &result, nil
}

func (c *VerticaConnector) Execute(ctx context.Context, sqlText string, params []any, rowLimit int) (*ResultSet, error) {
	if !verticaReturnsRows(sqlText) {
		res, err := c.db.ExecContext(ctx, sqlText, params...)
		if err != nil {
			return nil, classifyVerticaErr(err)
		}
		affected, _ := res.RowsAffected()
		return &ResultSet{Columns: []Column{}, Rows: [][]any{}, RowsAffected: affected}, nil
	}

	rows, err := c.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: strings.ToLower(columnTypes[i].DatabaseTypeName())}
	}

	result := &ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if rowLimit > 0 && len(result.Rows) >= rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, classifyVerticaErr(err)
		}
		for i, v := range values {
			values[i] = verticaConvertValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyVerticaErr(err)
	}
	return result, nil
}

const verticaListSchemasSQL = `
SELECT schema_name
FROM v_catalog.schemata
WHERE NOT is_system_schema`

func (c *VerticaConnector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, verticaListSchemasSQL)
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classifyVerticaErr(err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyVerticaErr(err)
	}
	return schemas, nil
}

// verticaListTablesSQL reads row counts from projection storage: per
// projection sums, then the max across projections of the anchor table.
// Catalog-derived, cheap, and possibly behind the latest loads.
const verticaListTablesSQL = `
SELECT t.table_name,
       COALESCE(ps.row_count, 0) AS approx_rows,
       (SELECT COUNT(*) FROM v_catalog.columns col WHERE col.table_id = t.table_id) AS column_count
FROM v_catalog.tables t
LEFT JOIN (
    SELECT anchor_table_id, MAX(projection_rows) AS row_count
    FROM (
        SELECT anchor_table_id, projection_id, SUM(row_count) AS projection_rows
        FROM v_monitor.projection_storage
        GROUP BY anchor_table_id, projection_id
    ) per_projection
    GROUP BY anchor_table_id
) ps ON ps.anchor_table_id = t.table_id
WHERE t.table_schema = ?
ORDER BY t.table_name`

func (c *VerticaConnector) ListTables(ctx context.Context, schema string, exact bool) ([]TableEntry, error) {
	rows, err := c.db.QueryContext(ctx, verticaListTablesSQL, schema)
	if err != nil {
		return nil, classifyVerticaErr(err)
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		entry := TableEntry{Schema: schema}
		if err := rows.Scan(&entry.Name, &entry.ApproxRows, &entry.ColumnCount); err != nil {
			return nil, classifyVerticaErr(err)
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyVerticaErr(err)
	}

	if exact {
		for i := range tables {
			ident := quoteVerticaIdent(schema) + "." + quoteVerticaIdent(tables[i].Name)
			var count int64
			if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&count); err != nil {
				continue
			}
			tables[i].ApproxRows = count
		}
	}
	return tables, nil
}

func (c *VerticaConnector) Close(ctx context.Context) error {
	return c.db.Close()
}

// verticaReturnsRows decides Query vs Exec by leading keyword. database/sql
// has no unified query/exec path, and Vertica has no parser library; this
// only routes the call, it never validates or rewrites the statement.
func verticaReturnsRows(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	for {
		switch {
		case strings.HasPrefix(trimmed, "--"):
			idx := strings.IndexByte(trimmed, '\n')
			if idx < 0 {
				return false
			}
			trimmed = strings.TrimSpace(trimmed[idx+1:])
		case strings.HasPrefix(trimmed, "("):
			// Parenthesized queries, e.g. (SELECT ...) UNION (SELECT ...).
			trimmed = strings.TrimSpace(trimmed[1:])
		default:
			switch strings.ToLower(firstWord(trimmed)) {
			case "select", "with", "explain", "show", "values", "profile":
				return true
			}
			return false
		}
	}
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

// quoteVerticaIdent double-quotes an identifier, escaping embedded quotes.
func quoteVerticaIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func verticaConvertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		return normalizeFloat(val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return val
	}
}

// classifyVerticaConnectErr maps connection-establishment failures.
func classifyVerticaConnectErr(err error) *Error {
	if e := classifyDialErr(err); e != nil {
		return e
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "invalid username or password"):
		return NewConnectionError(ConnKindAuthFailed, "authentication failed")
	case strings.Contains(msg, "database") && strings.Contains(msg, "does not exist"):
		return NewConnectionError(ConnKindNotFound, "database does not exist")
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return NewConnectionError(ConnKindUnreachable, "database host is unreachable").markConnLost()
	}
	return NewConnectionError(ConnKindUnknown, "failed to establish database connection").markConnLost()
}

// classifyVerticaErr translates driver errors into the shared taxonomy.
// vertica-sql-go exposes no structured SQLSTATE on its errors, so
// classification matches server message fragments; anything ambiguous
// lands in "unknown" rather than guessing. Server-side statement
// diagnostics are safe to surface; dial failures stay generic.
func classifyVerticaErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
		return NewQueryError(QueryKindTimeout, "statement timed out")
	}
	if e := classifyDialErr(err); e != nil {
		return e
	}
	raw := err.Error()
	msg := strings.ToLower(raw)
	switch {
	case strings.Contains(msg, "syntax error"):
		return NewQueryError(QueryKindSyntax, "%s", raw)
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "insufficient privilege"):
		return NewQueryError(QueryKindPermission, "%s", raw)
	case strings.Contains(msg, "authentication"):
		return NewConnectionError(ConnKindAuthFailed, "authentication failed").markConnLost()
	case strings.Contains(msg, "broken pipe"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"), strings.Contains(msg, "driver: bad connection"),
		strings.Contains(msg, "database is closed"):
		return NewConnectionError(ConnKindUnreachable, "connection to server was lost").markConnLost()
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found"):
		return NewQueryError(QueryKindRuntime, "%s", raw)
	case strings.Contains(msg, "cancelled") || strings.Contains(msg, "canceled"):
		return NewQueryError(QueryKindRuntime, "statement cancelled")
	}
	return NewQueryError(QueryKindUnknown, "%s", raw)
}
