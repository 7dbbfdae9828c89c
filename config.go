package dbmcp

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Connection ConnectionConfig `json:"connection"`
	Query      QueryConfig      `json:"query"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Logging LoggingConfig `json:"logging"`
}

// ConnectionConfig holds database connection parameters. Exactly one
// engine kind is selected per process instance. Credentials are
// write-only: they flow into the driver DSN and are never echoed in any
// result, error message, or log line.
type ConnectionConfig struct {
	Engine   Engine `json:"engine"` // "postgres" or "vertica"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"` // postgres only

	// ConnString, when set, overrides the discrete fields above.
	ConnString string `json:"connstring"`

	ConnectTimeoutSeconds int `json:"connect_timeout_seconds"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultRowLimit          int           `json:"default_row_limit"`
	DefaultTimeoutSeconds    int           `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds int           `json:"list_tables_timeout_seconds"`
	PingTimeoutSeconds       int           `json:"ping_timeout_seconds"`
	MaxSQLLength             int           `json:"max_sql_length"`
	ExactRowCounts           bool          `json:"exact_row_counts"`
	TimeoutRules             []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, or file path
}

// Default query settings applied by New for zero values.
const (
	defaultRowLimit       = 1000
	defaultQueryTimeout   = 30
	defaultListTimeout    = 10
	defaultPingTimeout    = 5
	defaultConnectTimeout = 10
	defaultMaxSQLLength   = 100000
)

// dsn builds the driver connection string for the configured engine.
func (c ConnectionConfig) dsn() (string, error) {
	if c.ConnString != "" {
		return c.ConnString, nil
	}
	if c.Host == "" || c.Database == "" {
		return "", fmt.Errorf("connection.host and connection.database are required when connstring is not set")
	}
	switch c.Engine {
	case EnginePostgres:
		parts := []string{
			fmt.Sprintf("host=%s", quoteKVValue(c.Host)),
			fmt.Sprintf("dbname=%s", quoteKVValue(c.Database)),
		}
		if c.Port > 0 {
			parts = append(parts, fmt.Sprintf("port=%d", c.Port))
		}
		if c.User != "" {
			parts = append(parts, fmt.Sprintf("user=%s", quoteKVValue(c.User)))
		}
		if c.Password != "" {
			parts = append(parts, fmt.Sprintf("password=%s", quoteKVValue(c.Password)))
		}
		if c.SSLMode != "" {
			parts = append(parts, fmt.Sprintf("sslmode=%s", quoteKVValue(c.SSLMode)))
		}
		return strings.Join(parts, " "), nil
	case EngineVertica:
		port := c.Port
		if port == 0 {
			port = 5433
		}
		u := url.URL{
			Scheme: "vertica",
			Host:   fmt.Sprintf("%s:%d", c.Host, port),
			Path:   "/" + c.Database,
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unknown engine kind %q", c.Engine)
	}
}

// quoteKVValue quotes a libpq keyword/value DSN value when it contains
// characters the parser would otherwise split or reject. Inside quotes,
// backslash and single quote are backslash-escaped.
func quoteKVValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Redacted returns a display form of the connection target with
// credentials masked, for doctor output and startup logs.
func (c ConnectionConfig) Redacted() string {
	if c.ConnString != "" {
		if u, err := url.Parse(c.ConnString); err == nil && u.Host != "" {
			if u.User != nil {
				u.User = url.UserPassword(u.User.Username(), "***")
			}
			return u.String()
		}
		return string(c.Engine) + "://<connstring>"
	}
	user := c.User
	if user == "" {
		user = "<user>"
	}
	return fmt.Sprintf("%s://%s:***@%s:%d/%s", c.Engine, user, c.Host, c.Port, c.Database)
}
