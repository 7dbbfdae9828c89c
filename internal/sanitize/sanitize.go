// Package sanitize scrubs credentials and connection details out of
// error text before it crosses the protocol boundary.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule is a regex replacement applied to outbound error messages.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Scrubber applies credential-masking rules to error messages. The
// default rules are always active; configured rules run after them.
type Scrubber struct {
	rules []compiledRule
}

// defaultRules cover the places driver errors are known to echo secrets:
// keyword/value DSNs, URL userinfo, and key=value credential pairs.
var defaultRules = []Rule{
	{Pattern: `(?i)password=\S+`, Replacement: "password=***"},
	{Pattern: `(?i)passwd=\S+`, Replacement: "passwd=***"},
	{Pattern: `([a-z][a-z0-9+.-]*://[^:/\s]+):[^@\s]+@`, Replacement: "$1:***@"},
	{Pattern: `(?i)(user|username)=\S+`, Replacement: "$1=***"},
}

// NewScrubber compiles the default rules plus extra configured rules.
// Returns an error on invalid regex patterns.
func NewScrubber(extra []Rule) (*Scrubber, error) {
	all := make([]Rule, 0, len(defaultRules)+len(extra))
	all = append(all, defaultRules...)
	all = append(all, extra...)

	compiled := make([]compiledRule, len(all))
	for i, r := range all {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Scrubber{rules: compiled}, nil
}

// Scrub applies all rules to msg in order.
func (s *Scrubber) Scrub(msg string) string {
	for _, rule := range s.rules {
		msg = rule.pattern.ReplaceAllString(msg, rule.replacement)
	}
	return msg
}
