package dbmcp_test

import (
	"context"
	"testing"
	"time"

	dbmcp "github.com/querytools/db-mcp"
)

func newTestManager(dial dbmcp.DialFunc) *dbmcp.Manager {
	return dbmcp.NewManager(dial, 5*time.Second, testLogger())
}

func TestManagerDialsLazily(t *testing.T) {
	t.Parallel()
	dials := 0
	fake := &fakeConnector{}
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) {
		dials++
		return fake, nil
	})

	if dials != 0 {
		t.Fatalf("expected no dial before first operation, got %d", dials)
	}
	err := m.Do(context.Background(), func(c dbmcp.Connector) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected 1 dial after first operation, got %d", dials)
	}

	// Second operation reuses the live handle.
	if err := m.Do(context.Background(), func(c dbmcp.Connector) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected handle reuse, got %d dials", dials)
	}
}

func TestManagerReconnectsOnceOnDeadSession(t *testing.T) {
	t.Parallel()
	dials := 0
	first := &fakeConnector{}
	second := &fakeConnector{}
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	})

	attempts := 0
	err := m.Do(context.Background(), func(c dbmcp.Connector) error {
		attempts++
		if c == dbmcp.Connector(first) {
			return dbmcp.NewConnLostError("connection to server was lost")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected transparent reconnect to succeed, got %v", err)
	}
	if dials != 2 || attempts != 2 {
		t.Fatalf("expected 2 dials and 2 attempts, got %d dials, %d attempts", dials, attempts)
	}
	if first.closeCount != 1 {
		t.Fatalf("expected dead handle closed once, got %d", first.closeCount)
	}
}

func TestManagerSurfacesSecondConsecutiveFailure(t *testing.T) {
	t.Parallel()
	dials := 0
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) {
		dials++
		return &fakeConnector{}, nil
	})

	attempts := 0
	err := m.Do(context.Background(), func(c dbmcp.Connector) error {
		attempts++
		return dbmcp.NewConnLostError("connection to server was lost")
	})
	if err == nil {
		t.Fatal("expected error after bounded retry")
	}
	if attempts != 2 {
		t.Fatalf("retry must be bounded at 1: got %d attempts", attempts)
	}
	if dials != 2 {
		t.Fatalf("expected 2 dials, got %d", dials)
	}
}

func TestManagerDoesNotRetryNonConnectionErrors(t *testing.T) {
	t.Parallel()
	fake := &fakeConnector{}
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) { return fake, nil })

	attempts := 0
	err := m.Do(context.Background(), func(c dbmcp.Connector) error {
		attempts++
		return dbmcp.NewQueryError(dbmcp.QueryKindSyntax, "bad statement")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("query errors must surface without retry: err=%v attempts=%d", err, attempts)
	}
}

func TestManagerReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	fake := &fakeConnector{}
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) { return fake, nil })

	if err := m.Do(context.Background(), func(c dbmcp.Connector) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	m.Release(ctx)
	m.Release(ctx)
	m.Release(ctx)
	if fake.closeCount != 1 {
		t.Fatalf("expected handle closed exactly once, got %d", fake.closeCount)
	}
}

func TestManagerRejectsOperationsAfterRelease(t *testing.T) {
	t.Parallel()
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) { return &fakeConnector{}, nil })
	m.Release(context.Background())

	err := m.Do(context.Background(), func(c dbmcp.Connector) error { return nil })
	assertErrorClass(t, err, dbmcp.TaxonomyConnection, dbmcp.ConnKindUnknown)
}

func TestManagerReleaseWithoutUseNeverDials(t *testing.T) {
	t.Parallel()
	dials := 0
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) {
		dials++
		return &fakeConnector{}, nil
	})
	m.Release(context.Background())
	if dials != 0 {
		t.Fatalf("release of an unused manager must not dial, got %d", dials)
	}
}

func TestManagerSurfacesDialFailureFast(t *testing.T) {
	t.Parallel()
	dials := 0
	m := newTestManager(func(ctx context.Context) (dbmcp.Connector, error) {
		dials++
		return nil, dbmcp.NewConnectionError(dbmcp.ConnKindUnreachable, "database host is unreachable")
	})

	err := m.Do(context.Background(), func(c dbmcp.Connector) error { return nil })
	assertErrorClass(t, err, dbmcp.TaxonomyConnection, dbmcp.ConnKindUnreachable)
	if dials != 1 {
		t.Fatalf("dial failures are not retried within one operation: got %d dials", dials)
	}
}
