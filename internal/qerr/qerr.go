// Package qerr holds the error classes shared by every pipeline stage.
//
// Stages wrap one of the sentinels with context; callers classify with
// errors.Is.
package qerr

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument marks a malformed command or call (controls on a
	// measurement, out-of-range register value, unsupported gate).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState marks use of a retired qubit or a frozen mapping.
	ErrInvalidState = errors.New("invalid state")
	// ErrLookup marks an unmapped or unknown qubit id.
	ErrLookup = errors.New("lookup error")
	// ErrRuntimeInconsistency marks a broken chain-internal invariant.
	ErrRuntimeInconsistency = errors.New("runtime inconsistency")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// InvalidState wraps ErrInvalidState with a formatted message.
func InvalidState(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

// Lookup wraps ErrLookup with a formatted message.
func Lookup(format string, args ...any) error {
	return errors.Wrapf(ErrLookup, format, args...)
}

// RuntimeInconsistency wraps ErrRuntimeInconsistency with a formatted message.
func RuntimeInconsistency(format string, args ...any) error {
	return errors.Wrapf(ErrRuntimeInconsistency, format, args...)
}
