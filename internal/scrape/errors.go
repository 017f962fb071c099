package scrape

import (
	"errors"
	"fmt"
)

// Kind classifies a scrape failure by the scope it affects.
type Kind string

const (
	// KindNavigation means the municipality page failed to load.
	KindNavigation Kind = "navigation"
	// KindParse means an expected element or pattern was missing.
	KindParse Kind = "parse"
	// KindTimeout means a readiness wait exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindIO means the export could not be written.
	KindIO Kind = "io"
	// KindUnknown covers anything not produced by this package.
	KindUnknown Kind = "unknown"
)

// Error is a classified scrape failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewNavigationError wraps a page load failure.
func NewNavigationError(op string, err error) *Error {
	return &Error{Kind: KindNavigation, Op: op, Err: err}
}

// NewParseError reports a missing element or unmatched pattern.
func NewParseError(op, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Op: op, Err: fmt.Errorf(format, args...)}
}

// NewTimeoutError wraps an exceeded readiness wait.
func NewTimeoutError(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Err: err}
}

// NewIOError wraps an output write failure.
func NewIOError(op string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
