package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for datagram framing.
var (
	ErrShortDatagram  = errors.New("transport: datagram shorter than header")
	ErrLengthMismatch = errors.New("transport: declared length does not match datagram size")
	ErrBadSegment     = errors.New("transport: malformed segment")
	ErrPayloadSize    = errors.New("transport: command payload size out of range")

	ErrPacketIDsExhausted = errors.New("transport: local packet IDs exhausted, session must be re-established")
)

// DesyncError reports a datagram whose framing cannot be trusted. The rest of
// the datagram is discarded; state mutations already applied stand.
type DesyncError struct {
	Offset   int // byte offset in the datagram where framing broke
	Declared int
	Actual   int
	Err      error
}

// Error describes where framing broke.
func (e *DesyncError) Error() string {
	return fmt.Sprintf("transport: desync at offset %d (declared %d, actual %d): %v",
		e.Offset, e.Declared, e.Actual, e.Err)
}

// Unwrap returns the framing sentinel.
func (e *DesyncError) Unwrap() error {
	return e.Err
}
