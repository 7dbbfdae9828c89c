package dbmcp

import (
	"context"
	"strings"
	"time"
)

// Query executes one statement with positionally bound parameters and a
// row-limit cap. Parameters go through the driver's native binding; SQL
// text is never interpolated, so bind values containing SQL
// metacharacters execute as literals.
func (d *DBMcp) Query(ctx context.Context, input QueryInput) (*QueryOutput, error) {
	startTime := time.Now()
	sql := input.SQL

	if strings.TrimSpace(sql) == "" {
		return nil, d.handleError("query", NewValidationError("sql must be a non-empty statement"))
	}
	if len(sql) > d.config.Query.MaxSQLLength {
		return nil, d.handleError("query", NewValidationError(
			"sql too long: %d bytes exceeds maximum of %d bytes", len(sql), d.config.Query.MaxSQLLength))
	}

	rowLimit := input.RowLimit
	if rowLimit < 0 {
		return nil, d.handleError("query", NewValidationError("row_limit must be a positive integer"))
	}
	if rowLimit == 0 {
		rowLimit = d.config.Query.DefaultRowLimit
	}
	// Statements that semantically cannot support limiting (DDL, plain
	// DML) make the cap a no-op.
	if !d.rowLimitApplies(sql) {
		rowLimit = 0
	}

	execTimeout, timeoutRule := d.timeoutMgr.ForQuery(sql)
	queryCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	var result *ResultSet
	err := d.manager.Do(queryCtx, func(conn Connector) error {
		var opErr error
		result, opErr = conn.Execute(queryCtx, sql, input.Params, rowLimit)
		return opErr
	})
	elapsed := time.Since(startTime)
	if err != nil {
		return nil, d.handleError("query", err)
	}

	logEvent := d.logger.Info().
		Str("op", "query").
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", elapsed).
		Int("row_count", len(result.Rows)).
		Int64("rows_affected", result.RowsAffected)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if result.Truncated {
		logEvent = logEvent.Bool("truncated", true)
	}
	logEvent.Msg("query executed")

	return &QueryOutput{
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowCount:     len(result.Rows),
		RowsAffected: result.RowsAffected,
		Truncated:    result.Truncated,
		ElapsedMs:    elapsed.Milliseconds(),
	}, nil
}

// rowLimitApplies reports whether the statement is row-returning, so the
// materialization cap is meaningful. Postgres gets a real answer from
// pg_query; Vertica routes by keyword inside the connector, where a cap
// on a non-row-returning statement is already a no-op.
func (d *DBMcp) rowLimitApplies(sql string) bool {
	if d.engine == EnginePostgres {
		return pgStatementReturnsRows(sql)
	}
	return true
}

// truncateRunes cuts s to at most maxLen bytes without splitting a
// multi-byte rune.
func truncateRunes(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && s[truncateAt]&0xC0 == 0x80 {
		truncateAt--
	}
	return s[:truncateAt]
}

// truncateForLog truncates a string for log output, to avoid oversized
// log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return truncateRunes(s, maxLen) + "...[truncated]"
}
