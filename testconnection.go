package dbmcp

import (
	"context"
	"time"
)

// maxVersionLength caps the reported server version string; some engines
// return multi-line build banners.
const maxVersionLength = 100

// TestConnection probes connectivity and reports latency, server
// version, and session identity. A connection that cannot be
// established surfaces as a ConnectionError with an engine-neutral kind.
func (d *DBMcp) TestConnection(ctx context.Context) (*TestConnectionOutput, error) {
	startTime := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, d.timeoutMgr.ForPing())
	defer cancel()

	var result *PingResult
	err := d.manager.Do(pingCtx, func(conn Connector) error {
		var opErr error
		result, opErr = conn.Ping(pingCtx)
		return opErr
	})
	if err != nil {
		return nil, d.handleError("test_connection", err)
	}

	version := result.ServerVersion
	if len(version) > maxVersionLength {
		version = truncateRunes(version, maxVersionLength) + "..."
	}

	d.logger.Info().
		Str("op", "test_connection").
		Dur("duration", time.Since(startTime)).
		Dur("latency", result.Latency).
		Msg("test_connection executed")

	return &TestConnectionOutput{
		Reachable:     true,
		LatencyMs:     result.Latency.Milliseconds(),
		ServerVersion: version,
		User:          result.User,
		Database:      result.Database,
		TableCount:    result.TableCount,
	}, nil
}
