package command

import (
	"errors"
	"fmt"
)

// Sentinel errors for command encoding. Callers distinguish them with
// errors.Is; every ValidationError matches ErrOutOfRange.
var (
	ErrOutOfRange  = errors.New("command: argument out of range")
	ErrUnsupported = errors.New("command: not representable by the switcher firmware")
)

// ValidationError reports an argument outside the range the switcher
// accepts. No datagram is built for a rejected command.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

// Error names the field, the rejected value and the accepted range.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("command: %s = %d, want %d..%d", e.Field, e.Value, e.Min, e.Max)
}

// Unwrap returns ErrOutOfRange.
func (e *ValidationError) Unwrap() error {
	return ErrOutOfRange
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// Result classifies what happened to a command request.
type Result uint8

// Command results.
const (
	Sent Result = iota
	RejectedOutOfRange
	RejectedUnsupported
	Failed
)

// String returns the result label used in API responses and metrics.
func (r Result) String() string {
	switch r {
	case Sent:
		return "sent"
	case RejectedOutOfRange:
		return "rejected_out_of_range"
	case RejectedUnsupported:
		return "rejected_unsupported"
	case Failed:
		return "failed"
	}
	return "invalid"
}

// ResultOf maps an error from encoding or sending a command to a Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Sent
	case errors.Is(err, ErrOutOfRange):
		return RejectedOutOfRange
	case errors.Is(err, ErrUnsupported):
		return RejectedUnsupported
	}
	return Failed
}
