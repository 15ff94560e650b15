package tally

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/zsiec/atemtally/internal/state"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()
	in := Frame{Program: 3010, Preview: 2, Tally: []uint8{0x01, 0x02, 0x03, 0x00}}

	var buf bytes.Buffer
	buf.Write(AppendFrame(nil, in))
	buf.Write(AppendFrame(nil, Frame{Program: 1}))

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
	if !got.ProgramTally(1) || !got.PreviewTally(2) || got.ProgramTally(4) || got.PreviewTally(5) {
		t.Errorf("tally accessors wrong for %+v", got)
	}

	second, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("second ReadFrame: %v", err)
	}
	if second.Program != 1 || len(second.Tally) != 0 {
		t.Errorf("second = %+v", second)
	}

	if _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestReadFrameSkipsUnknownType(t *testing.T) {
	t.Parallel()
	var b []byte
	b = quicvarint.Append(b, 0x7F)
	b = quicvarint.Append(b, 3)
	b = append(b, 1, 2, 3)
	b = AppendFrame(b, Frame{Program: 9})

	got, err := ReadFrame(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Program != 9 {
		t.Errorf("Program = %d, want 9", got.Program)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	t.Parallel()
	var b []byte
	b = quicvarint.Append(b, FrameTally)
	b = quicvarint.Append(b, MaxFrameSize+1)

	if _, err := ReadFrame(bytes.NewReader(b)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameTruncatedTally(t *testing.T) {
	t.Parallel()
	var body []byte
	body = quicvarint.Append(body, 1)
	body = quicvarint.Append(body, 2)
	body = quicvarint.Append(body, 5) // claims five inputs
	body = append(body, 0x01)

	var b []byte
	b = quicvarint.Append(b, FrameTally)
	b = quicvarint.Append(b, uint64(len(body)))
	b = append(b, body...)

	_, err := ReadFrame(bytes.NewReader(b))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Field != "tally" {
		t.Errorf("Field = %q, want tally", pe.Field)
	}
}

func TestFrameFromSnapshot(t *testing.T) {
	t.Parallel()
	store := state.New()
	store.SetProgramInput(4)
	store.SetPreviewInput(5)
	store.SetTally([]uint8{0, 0, 0, 0x01, 0x02})

	f := FrameFromSnapshot(store.Snapshot())
	if f.Program != 4 || f.Preview != 5 || len(f.Tally) != 5 {
		t.Fatalf("frame = %+v", f)
	}
	if !f.ProgramTally(4) || !f.PreviewTally(5) {
		t.Errorf("tally bits lost: %+v", f)
	}
}

func TestFrameJSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Frame{Program: 1, Preview: 2, Tally: []uint8{0x01, 0x02}})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Program int          `json:"program"`
		Inputs  []InputTally `json:"inputs"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Program != 1 || len(out.Inputs) != 2 {
		t.Fatalf("decoded %s", b)
	}
	if !out.Inputs[0].Program || out.Inputs[0].Preview || !out.Inputs[1].Preview || out.Inputs[1].Input != 2 {
		t.Errorf("inputs = %+v", out.Inputs)
	}
}
