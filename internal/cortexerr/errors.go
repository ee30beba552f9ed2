// Package cortexerr defines the error taxonomy shared by the cache,
// breaker, and tool-dispatch packages. Errors carry a Kind so callers can
// branch with errors.Is/errors.As without parsing message strings, and
// never embed stack traces or internal identifiers in their Error() text.
package cortexerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by source and handling semantics.
type Kind string

const (
	KindContentTooSmall    Kind = "ContentTooSmall"
	KindVersionMismatch    Kind = "VersionMismatch"
	KindFull               Kind = "Full"
	KindCorrupt            Kind = "Corrupt"
	KindCircuitOpen        Kind = "CircuitOpen"
	KindCircuitThrottling  Kind = "CircuitThrottling"
	KindToolNotFound       Kind = "ToolNotFound"
	KindSchemaConflict     Kind = "SchemaConflict"
	KindValidation         Kind = "ValidationError"
	KindRateLimited        Kind = "RateLimited"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindUnauthorized       Kind = "Unauthorized"
	KindTimeout            Kind = "Timeout"
	KindExecution          Kind = "ExecutionError"
	KindBusy               Kind = "Busy"
	KindInternal           Kind = "Internal"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "cache.store"
	Err  error  // wrapped cause, nil for leaf errors
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, cortexerr.New("", cortexerr.KindFull, nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error for the given operation and kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attaches an operation and kind to an existing error.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel comparison values, for errors.Is(err, cortexerr.ErrFull) style checks
// on call sites that don't need the Op context.
var (
	ErrContentTooSmall = &Error{Kind: KindContentTooSmall}
	ErrVersionMismatch = &Error{Kind: KindVersionMismatch}
	ErrFull            = &Error{Kind: KindFull}
	ErrCircuitOpen     = &Error{Kind: KindCircuitOpen}
	ErrToolNotFound    = &Error{Kind: KindToolNotFound}
	ErrSchemaConflict  = &Error{Kind: KindSchemaConflict}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrBusy            = &Error{Kind: KindBusy}
)
