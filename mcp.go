package dbmcp

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers TestConnection, Query, and ListTables as
// MCP tools on the given MCP server. Argument validation happens here,
// before anything reaches a connector: unknown or mistyped arguments
// produce a validation error without touching the database.
func RegisterMCPTools(mcpServer *server.MCPServer, d *DBMcp) {
	testConnectionTool := mcp.NewTool("test_connection",
		mcp.WithDescription("Test database connectivity. Returns latency, server version, and session identity."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(testConnectionTool, d.loggedToolHandler("test_connection", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := d.TestConnection(ctx)
		if err != nil {
			return toolErrorResult(err), nil
		}
		return toolJSONResult(output)
	}))

	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a SQL statement. Values belong in params, bound through the driver, never spliced into the SQL text."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute, with positional placeholders for bound values"),
		),
		mcp.WithArray("params",
			mcp.Description("Ordered bind values for the statement's placeholders"),
		),
		mcp.WithNumber("row_limit",
			mcp.Description("Maximum number of rows to return (default 1000)"),
		),
	)

	mcpServer.AddTool(queryTool, d.loggedToolHandler("query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return toolErrorResult(NewValidationError("sql parameter is required and must be a string")), nil
		}
		input := QueryInput{SQL: sql}

		args := req.GetArguments()
		if raw, ok := args["params"]; ok && raw != nil {
			params, ok := raw.([]any)
			if !ok {
				return toolErrorResult(NewValidationError("params must be an array of bind values")), nil
			}
			input.Params = params
		}
		if raw, ok := args["row_limit"]; ok && raw != nil {
			limit, ok := raw.(float64)
			// Bounded above so the float→int conversion stays in range.
			if !ok || limit != math.Trunc(limit) || limit < 1 || limit > math.MaxInt32 {
				return toolErrorResult(NewValidationError("row_limit must be an integer between 1 and %d", math.MaxInt32)), nil
			}
			input.RowLimit = int(limit)
		}

		output, err := d.Query(ctx, input)
		if err != nil {
			return toolErrorResult(err), nil
		}
		return toolJSONResult(output)
	}))

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List tables grouped by schema with approximate row counts and column counts, ordered by schema then table."),
		mcp.WithString("schema",
			mcp.Description("Restrict the listing to one schema (defaults to all readable schemas)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, d.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := d.ListTables(ctx, ListTablesInput{Schema: req.GetString("schema", "")})
		if err != nil {
			return toolErrorResult(err), nil
		}
		return toolJSONResult(output)
	}))
}

// loggedToolHandler wraps a tool handler with the operational log line
// and a panic guard. Every request is answered exactly once: a handler
// fault becomes an internal_error response instead of a dropped request.
func (d *DBMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("tool", tool).Interface("panic", r).Msg("tool handler panicked")
				result = toolErrorResult(NewInternalError("internal fault while handling %s", tool))
				err = nil
			}
			outcome := "ok"
			if result != nil && result.IsError {
				outcome = "error"
			}
			d.logger.Info().
				Str("tool", tool).
				Str("outcome", outcome).
				Dur("duration", time.Since(start)).
				Msg("tool call")
		}()
		return handler(ctx, req)
	}
}

// toolJSONResult marshals a success payload into a text result.
func toolJSONResult(payload any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return toolErrorResult(NewInternalError("failed to marshal tool result")), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolErrorResult serializes a classified error as the failure payload:
// a stable error kind plus a sanitized human-readable message.
func toolErrorResult(err error) *mcp.CallToolResult {
	e := AsError(err)
	jsonBytes, merr := json.Marshal(e)
	if merr != nil {
		return mcp.NewToolResultError(e.Error())
	}
	return mcp.NewToolResultError(string(jsonBytes))
}
