// Package cobleerr defines the error taxonomy shared across Cobble's
// components: every error surfaced from a public API call carries a
// Kind so callers can branch on category without parsing messages.
package cobleerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error into one of Cobble's recognized failure
// modes.
type Kind int

const (
	// Lookup indicates a named entity (task, build env, tool, var)
	// could not be found in the workspace graph.
	Lookup Kind = iota
	// Graph indicates a structural problem with the workspace or job
	// graph: a cycle, a dangling edge, or a violated invariant.
	Graph
	// IO indicates a filesystem or record-store operation failed.
	IO
	// Parse indicates a configuration or project-definition file could
	// not be parsed or failed validation.
	Parse
	// ActionFailed indicates an action ran but reported failure.
	ActionFailed
	// Script indicates the configured ActionHost could not execute or
	// validate a script-defined action.
	Script
)

func (k Kind) String() string {
	switch k {
	case Lookup:
		return "lookup"
	case Graph:
		return "graph"
	case IO:
		return "io"
	case Parse:
		return "parse"
	case ActionFailed:
		return "action_failed"
	case Script:
		return "script"
	default:
		return "unknown"
	}
}

// Error is Cobble's wrapped error type. Op names the operation that
// failed (e.g. "workspace.Build", "store.Get"); Err is the underlying
// cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%s", msg)}
}

// Wrap constructs an *Error wrapping err under op/kind. Returns nil if
// err is nil, so it is safe to use as `return cobleerr.Wrap(...)` at
// the tail of a function.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
