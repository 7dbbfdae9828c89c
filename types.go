package dbmcp

// QueryInput is the input for the Query tool.
type QueryInput struct {
	SQL      string `json:"sql"`
	Params   []any  `json:"params,omitempty"`
	RowLimit int    `json:"row_limit,omitempty"` // 0 means the configured default
}

// QueryOutput is the success payload of the Query tool.
type QueryOutput struct {
	Columns      []Column `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int      `json:"row_count"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
	ElapsedMs    int64    `json:"elapsed_ms"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct {
	// Schema restricts the listing to one schema. Empty lists all schemas.
	Schema string `json:"schema,omitempty"`
}

// SkippedSchema records a schema the connected role could not read.
// One inaccessible schema never hides the rest of the listing.
type SkippedSchema struct {
	Schema string `json:"schema"`
	Reason string `json:"reason"` // "permission_denied"
}

// ListTablesOutput is the success payload of the ListTables tool. Tables
// are ordered by schema name, then table name, and the listing is
// recomputed fresh on every call.
type ListTablesOutput struct {
	Tables  []TableEntry    `json:"tables"`
	Skipped []SkippedSchema `json:"skipped_schemas,omitempty"`
}

// TestConnectionOutput is the success payload of the TestConnection tool.
type TestConnectionOutput struct {
	Reachable     bool   `json:"reachable"`
	LatencyMs     int64  `json:"latency_ms"`
	ServerVersion string `json:"server_version"`
	User          string `json:"user,omitempty"`
	Database      string `json:"database,omitempty"`
	TableCount    int64  `json:"table_count"`
}
