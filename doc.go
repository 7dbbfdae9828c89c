// Package dbmcp exposes relational-database access to AI agents through
// the Model Context Protocol (MCP).
//
// It provides three tools — TestConnection, Query, and ListTables —
// against a single database engine per process instance (PostgreSQL or
// Vertica), behind one shared connector abstraction. The process owns a
// single lazily-established database session: it is created on the
// first tool call that needs the database, transparently re-established
// once if it dies, and released exactly once on shutdown.
//
// SQL injection is prevented structurally: bind values travel through
// the driver's native parameter binding (pgx extended query protocol
// for PostgreSQL, database/sql placeholders for Vertica) and are never
// interpolated into SQL text. Query results are capped at a row limit
// enforced while rows are materialized, and schema listings use catalog
// statistics rather than COUNT(*) so they stay cheap on large tables.
//
// Every failure is classified at the connector boundary into a small
// taxonomy (validation_error, connection_error, query_error,
// internal_error) with a stable kind string and a sanitized message.
// Raw driver errors, credentials, and connection strings never cross
// the protocol boundary.
//
// # Library Usage
//
//	d, err := dbmcp.New(dbmcp.Config{
//		Connection: dbmcp.ConnectionConfig{
//			Engine:   dbmcp.EnginePostgres,
//			Host:     "localhost",
//			Port:     5432,
//			Database: "app",
//			User:     "reader",
//			Password: os.Getenv("DB_PASSWORD"),
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close(ctx)
//
//	// Use directly
//	out, err := d.Query(ctx, dbmcp.QueryInput{
//		SQL:    "SELECT * FROM users WHERE id = $1",
//		Params: []any{1},
//	})
//
//	// Or register as MCP tools
//	dbmcp.RegisterMCPTools(mcpServer, d)
//
// The cmd/godbmcp binary serves the tools over stdio for MCP hosts.
package dbmcp
