// Package errs defines the closed error-kind taxonomy shared by every
// package in this module. Every boundary failure is classified into one
// of these kinds rather than communicated through ad hoc sentinel or
// struct types per package.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The set is closed: callers switch on it
// exhaustively rather than treating it as extensible.
type Kind int

const (
	// Unknown is never constructed directly; it is the zero value
	// returned by Kind() for an error this package did not produce.
	Unknown Kind = iota
	InvalidArgument
	NotFound
	OffsetOutOfRange
	DuplicateTimestamp
	OrderNotExecutable
	PositionStateViolation
	UnsupportedTimeframe
	PermutationAlgorithmFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case OffsetOutOfRange:
		return "offset_out_of_range"
	case DuplicateTimestamp:
		return "duplicate_timestamp"
	case OrderNotExecutable:
		return "order_not_executable"
	case PositionStateViolation:
		return "position_state_violation"
	case UnsupportedTimeframe:
		return "unsupported_timeframe"
	case PermutationAlgorithmFailure:
		return "permutation_algorithm_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type produced at every subsystem boundary.
// Op names the failing operation (e.g. "series.AddEntry"); the wrapped
// cause is optional.
type Error struct {
	Kind Kind
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

func newErr(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func InvalidArg(op, msg string) *Error { return newErr(InvalidArgument, op, msg, nil) }
func WrapInvalidArg(op, msg string, err error) *Error {
	return newErr(InvalidArgument, op, msg, err)
}
func NewNotFound(op, msg string) *Error           { return newErr(NotFound, op, msg, nil) }
func NewOffsetOutOfRange(op, msg string) *Error   { return newErr(OffsetOutOfRange, op, msg, nil) }
func NewDuplicateTimestamp(op, msg string) *Error { return newErr(DuplicateTimestamp, op, msg, nil) }
func NewOrderNotExecutable(op, msg string) *Error { return newErr(OrderNotExecutable, op, msg, nil) }
func NewPositionStateViolation(op, msg string) *Error {
	return newErr(PositionStateViolation, op, msg, nil)
}
func NewUnsupportedTimeframe(op, msg string) *Error {
	return newErr(UnsupportedTimeframe, op, msg, nil)
}
func NewPermutationFailure(op, msg string) *Error {
	return newErr(PermutationAlgorithmFailure, op, msg, nil)
}
func WrapPermutationFailure(op, msg string, err error) *Error {
	return newErr(PermutationAlgorithmFailure, op, msg, err)
}

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
