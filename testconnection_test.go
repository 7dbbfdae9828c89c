package dbmcp_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	dbmcp "github.com/querytools/db-mcp"
)

func TestTestConnectionReportsSessionIdentity(t *testing.T) {
	t.Parallel()
	fake := &fakeConnector{
		pingResult: &dbmcp.PingResult{
			Latency:       7 * time.Millisecond,
			ServerVersion: "PostgreSQL 16.3 on x86_64-pc-linux-gnu",
			User:          "reporting_ro",
			Database:      "warehouse",
			TableCount:    37,
		},
	}
	d := newTestEngine(t, defaultConfig(), fake)

	output, err := d.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !output.Reachable {
		t.Fatal("expected reachable to be true")
	}
	if output.LatencyMs != 7 {
		t.Fatalf("expected latency 7ms, got %d", output.LatencyMs)
	}
	if output.User != "reporting_ro" || output.Database != "warehouse" {
		t.Fatalf("session identity not surfaced: %#v", output)
	}
	if output.TableCount != 37 {
		t.Fatalf("expected table count 37, got %d", output.TableCount)
	}
}

func TestTestConnectionTruncatesLongVersionBanner(t *testing.T) {
	t.Parallel()
	banner := "Vertica Analytic Database v12.0.4-0 " + strings.Repeat("build-metadata ", 20)
	fake := &fakeConnector{
		pingResult: &dbmcp.PingResult{ServerVersion: banner},
	}
	d := newTestEngine(t, defaultConfig(), fake)

	output, err := d.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(output.ServerVersion, "...") {
		t.Fatalf("expected truncated banner to end with ellipsis, got %q", output.ServerVersion)
	}
	if len(output.ServerVersion) != 103 {
		t.Fatalf("expected 100 bytes plus ellipsis, got %d", len(output.ServerVersion))
	}
}

func TestTestConnectionTruncationRespectsRuneBoundaries(t *testing.T) {
	t.Parallel()
	// 3-byte runes, 120 bytes total; byte 100 falls mid-rune.
	fake := &fakeConnector{
		pingResult: &dbmcp.PingResult{ServerVersion: strings.Repeat("世", 40)},
	}
	d := newTestEngine(t, defaultConfig(), fake)

	output, err := d.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(output.ServerVersion) {
		t.Fatalf("truncated version is not valid UTF-8: %q", output.ServerVersion)
	}
	if !strings.HasSuffix(output.ServerVersion, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", output.ServerVersion)
	}
	if got := len(output.ServerVersion); got != 99+3 {
		t.Fatalf("expected cut at the last full rune before byte 100, got %d bytes", got)
	}
}

func TestTestConnectionSurfacesConnectionError(t *testing.T) {
	t.Parallel()
	fake := &fakeConnector{
		pingErr: dbmcp.NewConnectionError(dbmcp.ConnKindAuthFailed, "password authentication failed"),
	}
	d := newTestEngine(t, defaultConfig(), fake)

	_, err := d.TestConnection(context.Background())
	assertErrorClass(t, err, dbmcp.TaxonomyConnection, dbmcp.ConnKindAuthFailed)
}
