package dbmcp

import (
	"errors"
	"testing"
)

func TestVerticaReturnsRows(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sql  string
		want bool
	}{
		{"SELECT 1", true},
		{"  select * from sales.invoices", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"(SELECT 1) UNION (SELECT 2)", true},
		{"((select 1))", true},
		{"( -- leading comment inside parens\nSELECT 1)", true},
		{"(VALUES (1)) AS v", true},
		{"EXPLAIN SELECT 1", true},
		{"SHOW search_path", true},
		{"VALUES (1)", true},
		{"PROFILE SELECT 1", true},
		{"INSERT INTO t VALUES (?)", false},
		{"UPDATE t SET x = ?", false},
		{"DELETE FROM t", false},
		{"CREATE TABLE t (id int)", false},
		{"COPY t FROM STDIN", false},
		{"-- leading comment\nSELECT 1", true},
		{"-- first\n-- second\nselect 1", true},
		{"-- comment only, no statement", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := verticaReturnsRows(tc.sql); got != tc.want {
			t.Errorf("verticaReturnsRows(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}

func TestFirstWord(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"select 1", "select"},
		{"select\n1", "select"},
		{"select(1)", "select"},
		{"select", "select"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := firstWord(tc.in); got != tc.want {
			t.Errorf("firstWord(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuoteVerticaIdent(t *testing.T) {
	t.Parallel()
	if got := quoteVerticaIdent("public"); got != `"public"` {
		t.Fatalf("got %q", got)
	}
	if got := quoteVerticaIdent(`evil"; DROP TABLE x; --`); got != `"evil""; DROP TABLE x; --"` {
		t.Fatalf("embedded quote not escaped: %q", got)
	}
}

func TestClassifyVerticaErr(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		err      error
		taxonomy Taxonomy
		kind     string
		lost     bool
	}{
		{"syntax", errors.New(`[42601] Syntax error at or near "SELEC"`), TaxonomyQuery, QueryKindSyntax, false},
		{"permission", errors.New("Permission denied for relation secrets"), TaxonomyQuery, QueryKindPermission, false},
		{"insufficient privilege", errors.New("ERROR: Insufficient privilege: USAGE on schema restricted"), TaxonomyQuery, QueryKindPermission, false},
		{"missing relation", errors.New(`Table "nope" does not exist`), TaxonomyQuery, QueryKindRuntime, false},
		{"deadline", errors.New("context deadline exceeded"), TaxonomyQuery, QueryKindTimeout, false},
		{"broken pipe", errors.New("write tcp 10.0.0.5:5433: broken pipe"), TaxonomyConnection, ConnKindUnreachable, true},
		{"bad connection", errors.New("driver: bad connection"), TaxonomyConnection, ConnKindUnreachable, true},
		{"opaque", errors.New("unexpected message type 0x58"), TaxonomyQuery, QueryKindUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyVerticaErr(tc.err)
			if got.Taxonomy != tc.taxonomy || got.Kind != tc.kind {
				t.Fatalf("got %s/%s, want %s/%s", got.Taxonomy, got.Kind, tc.taxonomy, tc.kind)
			}
			if IsConnectionLost(got) != tc.lost {
				t.Fatalf("conn-lost = %v, want %v", IsConnectionLost(got), tc.lost)
			}
		})
	}
}

func TestClassifyVerticaConnectErr(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"bad credentials", errors.New("Invalid username or password"), ConnKindAuthFailed},
		{"missing database", errors.New(`Database "nope" does not exist`), ConnKindNotFound},
		{"refused", errors.New("dial tcp: connection refused"), ConnKindUnreachable},
		{"anything else", errors.New("handshake failed"), ConnKindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyVerticaConnectErr(tc.err)
			if got.Taxonomy != TaxonomyConnection || got.Kind != tc.kind {
				t.Fatalf("got %s/%s, want connection_error/%s", got.Taxonomy, got.Kind, tc.kind)
			}
		})
	}
}

func TestVerticaConvertValueBytes(t *testing.T) {
	t.Parallel()
	if got := verticaConvertValue([]byte("abc")); got != "YWJj" {
		t.Fatalf("bytes not base64 encoded: %v", got)
	}
	if got := verticaConvertValue(int64(9)); got != int64(9) {
		t.Fatalf("scalar changed: %v", got)
	}
}
