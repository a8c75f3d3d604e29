// Package dberr defines the typed error kinds the engine surfaces to callers.
package dberr

import (
	"errors"
	"fmt"
)

// Code classifies a failure the way §7 of the design groups them.
type Code int

const (
	// Internal marks a broken KV/engine invariant.
	Internal Code = iota
	// InvalidArgument marks a malformed statement or value.
	InvalidArgument
	// FailedPrecondition marks a catalog rule violation (bad annotation, cycle, etc).
	FailedPrecondition
	// NotFound marks a missing table, shard, or row.
	NotFound
)

func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "invalid_argument"
	case FailedPrecondition:
		return "failed_precondition"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the engine's error type. It always carries a Code so callers can
// branch on classification without string matching.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(code Code, op, msg string) *Error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// Wrap builds an *Error around an existing error.
func Wrap(code Code, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Msg: err.Error(), Err: err}
}

// Is reports whether err is an *Error of the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Sentinel causes that callers may match with errors.Is, mirroring the
// teacher's sentinel-error-plus-wrap convention (internal/storage/sqlite/errors.go).
var (
	// ErrOwnerNull is returned when a DIRECT owner FK column is NULL on insert (§4.4, §4.6).
	ErrOwnerNull = errors.New("owner column is null")
	// ErrDanglingFK is returned when a TRANSITIVE, non-variable FK resolves to zero shards (§4.4, §4.6).
	ErrDanglingFK = errors.New("dangling foreign key: transitive owner not found")
	// ErrSeparatorInValue is returned when a stored value contains the field separator byte (§9).
	ErrSeparatorInValue = errors.New("value contains reserved field separator byte")
	// ErrAmbiguousOwner is returned when a CREATE TABLE implies more than one implicit owner (§3.2).
	ErrAmbiguousOwner = errors.New("more than one implicit owner; annotate explicitly")
	// ErrNotDataSubject is returned when OWNER/ACCESSOR targets a table that is not a data subject (§3.2).
	ErrNotDataSubject = errors.New("referenced table is not a data subject, owned, or accessed table")
	// ErrCycle is returned when an OWNS/OWNER chain would create a cycle (§9).
	ErrCycle = errors.New("ownership graph cycle detected")
	// ErrNoUniquePK is returned when a CREATE TABLE declares no primary-key column.
	ErrNoUniquePK = errors.New("statement does not bind the primary key to a single value")
)

// Wrapf formats a message then wraps err, convenience over Wrap+fmt.Errorf.
func Wrapf(code Code, op string, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}
