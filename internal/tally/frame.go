package tally

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/zsiec/atemtally/internal/state"
)

// Frame types carried on a tally stream.
const (
	FrameTally uint64 = 0x01
)

// MaxFrameSize bounds a frame body.
const MaxFrameSize = 1024

// ErrFrameTooLarge is returned for frames longer than MaxFrameSize.
var ErrFrameTooLarge = errors.New("tally: frame too large")

// ParseError indicates a malformed frame field.
type ParseError struct {
	Field string
	Err   error
}

// Error names the malformed field.
func (e *ParseError) Error() string {
	return fmt.Sprintf("tally: parse %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Frame is one tally update: bus sources plus the per-input tally bits
// (bit 0 program, bit 1 preview) for inputs 1..len(Tally).
type Frame struct {
	Program uint16
	Preview uint16
	Tally   []uint8
}

// InputTally is the JSON form of one input's tally.
type InputTally struct {
	Input   int  `json:"input"`
	Program bool `json:"program"`
	Preview bool `json:"preview"`
}

type frameJSON struct {
	Program uint16       `json:"program"`
	Preview uint16       `json:"preview"`
	Inputs  []InputTally `json:"inputs"`
}

// MarshalJSON renders the tally bits as per-input booleans for dashboards.
func (f Frame) MarshalJSON() ([]byte, error) {
	out := frameJSON{
		Program: f.Program,
		Preview: f.Preview,
		Inputs:  make([]InputTally, len(f.Tally)),
	}
	for i := range f.Tally {
		out.Inputs[i] = InputTally{
			Input:   i + 1,
			Program: f.ProgramTally(i + 1),
			Preview: f.PreviewTally(i + 1),
		}
	}
	return json.Marshal(out)
}

// FrameFromSnapshot extracts the tally-relevant fields of a snapshot.
func FrameFromSnapshot(s state.Snapshot) Frame {
	bits := make([]uint8, s.TallyCount)
	copy(bits, s.Tally[:s.TallyCount])
	return Frame{Program: s.Program, Preview: s.Preview, Tally: bits}
}

// ProgramTally reports whether 1-based input is on program.
func (f Frame) ProgramTally(input int) bool {
	return input >= 1 && input <= len(f.Tally) && f.Tally[input-1]&state.TallyProgram != 0
}

// PreviewTally reports whether 1-based input is on preview.
func (f Frame) PreviewTally(input int) bool {
	return input >= 1 && input <= len(f.Tally) && f.Tally[input-1]&state.TallyPreview != 0
}

// Equal reports whether two frames carry the same tally.
func (f Frame) Equal(o Frame) bool {
	if f.Program != o.Program || f.Preview != o.Preview || len(f.Tally) != len(o.Tally) {
		return false
	}
	for i := range f.Tally {
		if f.Tally[i] != o.Tally[i] {
			return false
		}
	}
	return true
}

// AppendFrame appends the wire form of f to b:
// [type varint][length varint][program varint][preview varint][count varint][bits...].
func AppendFrame(b []byte, f Frame) []byte {
	var body []byte
	body = quicvarint.Append(body, uint64(f.Program))
	body = quicvarint.Append(body, uint64(f.Preview))
	body = quicvarint.Append(body, uint64(len(f.Tally)))
	body = append(body, f.Tally...)

	b = quicvarint.Append(b, FrameTally)
	b = quicvarint.Append(b, uint64(len(body)))
	return append(b, body...)
}

// ReadFrame reads the next frame from r. Frames of unknown type are skipped.
func ReadFrame(r io.Reader) (Frame, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
		r = br.(io.Reader)
	}
	for {
		typ, err := quicvarint.Read(br)
		if err != nil {
			return Frame{}, err
		}
		length, err := quicvarint.Read(br)
		if err != nil {
			return Frame{}, &ParseError{Field: "length", Err: err}
		}
		if length > MaxFrameSize {
			return Frame{}, ErrFrameTooLarge
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, &ParseError{Field: "body", Err: err}
		}
		if typ != FrameTally {
			continue
		}
		return parseTally(body)
	}
}

func parseTally(body []byte) (Frame, error) {
	var f Frame
	pos := 0
	next := func(field string) (uint64, error) {
		if pos >= len(body) {
			return 0, &ParseError{Field: field, Err: io.ErrUnexpectedEOF}
		}
		v, n, err := quicvarint.Parse(body[pos:])
		if err != nil {
			return 0, &ParseError{Field: field, Err: err}
		}
		pos += n
		return v, nil
	}

	program, err := next("program")
	if err != nil {
		return f, err
	}
	preview, err := next("preview")
	if err != nil {
		return f, err
	}
	count, err := next("count")
	if err != nil {
		return f, err
	}
	if program > 0xFFFF || preview > 0xFFFF {
		return f, &ParseError{Field: "source", Err: ErrFrameTooLarge}
	}
	if count > uint64(len(body)-pos) {
		return f, &ParseError{Field: "tally", Err: io.ErrUnexpectedEOF}
	}
	f.Program = uint16(program)
	f.Preview = uint16(preview)
	f.Tally = append([]uint8(nil), body[pos:pos+int(count)]...)
	return f, nil
}
