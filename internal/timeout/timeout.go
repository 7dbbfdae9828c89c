// Package timeout resolves per-statement execution deadlines from
// pattern-matching rules, with separate defaults for query execution,
// schema introspection, and connectivity probes.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a SQL regex pattern to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	DefaultQuery time.Duration
	ListTables   time.Duration
	Ping         time.Duration
	Rules        []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves statement timeouts. First matching rule wins; the
// per-operation default applies otherwise.
type Manager struct {
	rules      []compiledRule
	query      time.Duration
	listTables time.Duration
	ping       time.Duration
}

// NewManager creates a new Manager. Panics on invalid regex patterns,
// which are a configuration bug.
func NewManager(config Config) *Manager {
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			panic(fmt.Sprintf("timeout: invalid regex pattern %q: %v", r.Pattern, err))
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{
		rules:      compiled,
		query:      config.DefaultQuery,
		listTables: config.ListTables,
		ping:       config.Ping,
	}
}

// ForQuery returns the timeout for the given SQL and, when a rule
// matched, the rule's pattern for logging.
func (m *Manager) ForQuery(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.query, ""
}

// ForListTables returns the schema-introspection timeout.
func (m *Manager) ForListTables() time.Duration { return m.listTables }

// ForPing returns the connectivity-probe timeout.
func (m *Manager) ForPing() time.Duration { return m.ping }
