package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	dbmcp "github.com/querytools/db-mcp"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const serverVersion = "1.0.0"

func runServe() error {
	// Stream closed by the host is a clean shutdown; signals cancel the
	// context so an in-flight request drains before release.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(serverConfig.Logging)

	d, err := dbmcp.New(serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer d.Close(context.Background())

	// Startup connectivity probe. Non-fatal: the session reconnects
	// lazily, and an unreachable database should not keep the tools
	// from reporting proper errors to the agent.
	if probe, err := d.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Str("target", serverConfig.Connection.Redacted()).Msg("startup connectivity probe failed")
	} else {
		logger.Info().
			Str("server_version", probe.ServerVersion).
			Int64("latency_ms", probe.LatencyMs).
			Msg("startup connectivity probe succeeded")
	}

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})
	// Correlation ids for the operational log: request id in, same id out.
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		logger.Info().
			Interface("request_id", id).
			Str("tool", req.Params.Name).
			Msg("tool request received")
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result *mcp.CallToolResult) {
		outcome := "ok"
		if result != nil && result.IsError {
			outcome = "error"
		}
		logger.Info().
			Interface("request_id", id).
			Str("tool", req.Params.Name).
			Str("outcome", outcome).
			Msg("tool request answered")
	})

	mcpServer := server.NewMCPServer("godbmcp", serverVersion,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	dbmcp.RegisterMCPTools(mcpServer, d)

	logger.Info().
		Str("engine", string(serverConfig.Connection.Engine)).
		Str("target", serverConfig.Connection.Redacted()).
		Msg("starting godbmcp on stdio")

	stdioServer := server.NewStdioServer(mcpServer)
	err = stdioServer.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stream closed, shutting down")
	return nil
}

// loadServerConfig reads the JSON config file (optional) and applies
// environment overrides for the connection parameters. The environment
// is how MCP hosts supply per-server configuration.
func loadServerConfig() (*dbmcp.ServerConfig, error) {
	configPath := os.Getenv("GODBMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".godbmcp/config.json"
	}

	var config dbmcp.ServerConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err) && os.Getenv("GODBMCP_CONFIG_PATH") == "":
		// No config file is fine when the environment carries the connection.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	applyEnvOverrides(&config.Connection)

	if config.Connection.Engine == "" {
		return nil, fmt.Errorf("no engine kind configured: set GODBMCP_ENGINE or connection.engine")
	}
	return &config, nil
}

func applyEnvOverrides(conn *dbmcp.ConnectionConfig) {
	if v := os.Getenv("GODBMCP_ENGINE"); v != "" {
		conn.Engine = dbmcp.Engine(strings.ToLower(v))
	}
	if v := os.Getenv("GODBMCP_CONNSTRING"); v != "" {
		conn.ConnString = v
	}
	if v := os.Getenv("GODBMCP_DB_HOST"); v != "" {
		conn.Host = v
	}
	if v := os.Getenv("GODBMCP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conn.Port = port
		}
	}
	if v := os.Getenv("GODBMCP_DB_NAME"); v != "" {
		conn.Database = v
	}
	if v := os.Getenv("GODBMCP_DB_USER"); v != "" {
		conn.User = v
	}
	if v := os.Getenv("GODBMCP_DB_PASSWORD"); v != "" {
		conn.Password = v
	}
	if v := os.Getenv("GODBMCP_DB_SSLMODE"); v != "" {
		conn.SSLMode = v
	}
}

// setupLogger builds the process logger. Defaults to stderr: stdout
// carries the MCP stream and must stay clean.
func setupLogger(config dbmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
