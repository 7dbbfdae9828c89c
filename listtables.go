package dbmcp

import (
	"context"
	"sort"
	"time"
)

// ListTables enumerates tables grouped by schema, ordered by schema name
// then table name, so repeated calls against an unchanged database
// produce identical output. The listing is recomputed fresh on every
// call — a cached listing would mislead the caller about current data
// shape. Schemas the connected role cannot read become skipped entries
// instead of aborting the whole listing.
func (d *DBMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	listCtx, cancel := context.WithTimeout(ctx, d.timeoutMgr.ForListTables())
	defer cancel()

	output := &ListTablesOutput{Tables: []TableEntry{}}
	err := d.manager.Do(listCtx, func(conn Connector) error {
		schemas, opErr := conn.ListSchemas(listCtx)
		if opErr != nil {
			return opErr
		}
		sort.Strings(schemas)

		if input.Schema != "" {
			found := false
			for _, s := range schemas {
				if s == input.Schema {
					found = true
					break
				}
			}
			if !found {
				return NewQueryError(QueryKindRuntime, "schema %q does not exist", input.Schema)
			}
			schemas = []string{input.Schema}
		}

		// Reset accumulators: Do may re-run the whole op once after a
		// transparent reconnect.
		output.Tables = output.Tables[:0]
		output.Skipped = nil

		for _, schema := range schemas {
			entries, opErr := conn.ListTables(listCtx, schema, d.config.Query.ExactRowCounts)
			if opErr != nil {
				if e := AsError(opErr); e.Taxonomy == TaxonomyQuery && e.Kind == QueryKindPermission {
					output.Skipped = append(output.Skipped, SkippedSchema{Schema: schema, Reason: "permission_denied"})
					continue
				}
				return opErr
			}
			output.Tables = append(output.Tables, entries...)
		}
		return nil
	})
	if err != nil {
		return nil, d.handleError("list_tables", err)
	}

	d.logger.Info().
		Str("op", "list_tables").
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(output.Tables)).
		Int("skipped_schemas", len(output.Skipped)).
		Msg("list_tables executed")

	return output, nil
}
