package dbmcp

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Taxonomy is the top-level error category reported to the MCP client.
type Taxonomy string

const (
	TaxonomyValidation Taxonomy = "validation_error"
	TaxonomyConnection Taxonomy = "connection_error"
	TaxonomyQuery      Taxonomy = "query_error"
	TaxonomyInternal   Taxonomy = "internal_error"
)

// Connection error kinds.
const (
	ConnKindUnreachable = "unreachable"
	ConnKindAuthFailed  = "auth_failed"
	ConnKindNotFound    = "not_found"
	ConnKindUnknown     = "unknown"
)

// Query error kinds.
const (
	QueryKindSyntax     = "syntax"
	QueryKindPermission = "permission"
	QueryKindRuntime    = "runtime"
	QueryKindTimeout    = "timeout"
	QueryKindUnknown    = "unknown"
)

// Error is the classified error type that crosses the protocol boundary.
// Message must already be sanitized — connectors classify driver errors
// into an Error before anything above them sees the failure, and nothing
// above the connector layer inspects driver error types.
type Error struct {
	Taxonomy Taxonomy `json:"error"`
	Kind     string   `json:"kind,omitempty"`
	Message  string   `json:"message"`

	// connLost marks errors where the underlying session is known dead,
	// so the lifecycle manager can reconnect once.
	connLost bool
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s/%s: %s", e.Taxonomy, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Taxonomy, e.Message)
}

// NewValidationError reports a malformed or unknown request. Validation
// errors are produced locally and never reach the database.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Taxonomy: TaxonomyValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConnectionError reports a failure to establish or keep a database session.
func NewConnectionError(kind, format string, args ...any) *Error {
	return &Error{Taxonomy: TaxonomyConnection, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewQueryError reports a failure while executing a statement.
func NewQueryError(kind, format string, args ...any) *Error {
	return &Error{Taxonomy: TaxonomyQuery, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError reports an unexpected fault caught at the dispatch boundary.
func NewInternalError(format string, args ...any) *Error {
	return &Error{Taxonomy: TaxonomyInternal, Message: fmt.Sprintf(format, args...)}
}

// NewConnLostError reports a dead session. The lifecycle manager
// reconnects exactly once when an operation fails with one of these.
func NewConnLostError(format string, args ...any) *Error {
	return NewConnectionError(ConnKindUnreachable, format, args...).markConnLost()
}

// markConnLost flags the error as a dead-session condition and returns it.
func (e *Error) markConnLost() *Error {
	e.connLost = true
	return e
}

// IsConnectionLost reports whether err indicates the underlying session is
// dead and a single transparent reconnect is warranted.
func IsConnectionLost(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.connLost
	}
	return false
}

// AsError extracts a classified *Error from err, or wraps it as an
// InternalError if no classification happened below. The fallback message
// is intentionally generic: an unclassified error may carry driver text.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewQueryError(QueryKindTimeout, "operation timed out")
	}
	if errors.Is(err, context.Canceled) {
		return NewQueryError(QueryKindRuntime, "operation cancelled")
	}
	return NewInternalError("unexpected internal failure")
}

// classifyDialErr maps network-level dial failures to connection error kinds.
// Shared by both connectors; credential and DSN text stays out of the message.
func classifyDialErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewConnectionError(ConnKindUnreachable, "connection attempt timed out").markConnLost()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewConnectionError(ConnKindUnreachable, "connection attempt timed out").markConnLost()
		}
		return NewConnectionError(ConnKindUnreachable, "database host is unreachable").markConnLost()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewConnectionError(ConnKindUnreachable, "database host is unreachable").markConnLost()
	}
	return nil
}
