// Package errs defines the three error kinds distflood distinguishes:
// InputError, ResourceError, and LogicError. All three wrap an underlying
// error and are meant to be tested with errors.As at the boundary that
// decides the process's exit code (cmd/distflood/main.go), the same
// single-fatal-exit-path style used at other I/O boundaries in this
// codebase, just split by kind instead of one undifferentiated log line.
package errs

import "fmt"

// InputError is a missing file, unreadable raster, wrong datatype, or
// zero-sized grid.
type InputError struct{ Err error }

func (e *InputError) Error() string { return fmt.Sprintf("input error: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// ResourceError is an allocation failure, transport failure, or
// unreachable peer.
type ResourceError struct{ Err error }

func (e *ResourceError) Error() string { return fmt.Sprintf("resource error: %v", e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }

// LogicError is an invariant violation: a bug, not bad input. Examples:
// a cell dequeued without a label, a graph edge reporting a weight
// lower than both endpoint elevations.
type LogicError struct{ Err error }

func (e *LogicError) Error() string { return fmt.Sprintf("logic error: %v", e.Err) }
func (e *LogicError) Unwrap() error { return e.Err }
