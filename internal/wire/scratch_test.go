package wire

import (
	"bytes"
	"testing"
)

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestScratchSingleChunk(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset(seq(10))
	if more := s.Fill(ScratchSize); more {
		t.Error("Fill reported more bytes for a 10-byte segment")
	}
	if s.Len() != 10 {
		t.Errorf("Len = %d, want 10", s.Len())
	}
	if s.Byte(9) != 9 {
		t.Errorf("Byte(9) = %d, want 9", s.Byte(9))
	}
	if s.Overflow() {
		t.Error("unexpected overflow")
	}
}

func TestScratchChunkedReads(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset(seq(250))

	if !s.Fill(ScratchSize) {
		t.Fatal("first Fill should report remaining bytes")
	}
	if s.Len() != ScratchSize || s.Byte(0) != 0 {
		t.Errorf("chunk 1: len=%d first=%d", s.Len(), s.Byte(0))
	}
	if !s.Fill(ScratchSize) {
		t.Fatal("second Fill should report remaining bytes")
	}
	if s.Byte(0) != 96 {
		t.Errorf("chunk 2 first byte = %d, want 96", s.Byte(0))
	}
	if s.Fill(ScratchSize) {
		t.Error("third Fill should exhaust the segment")
	}
	if s.Len() != 250-192 {
		t.Errorf("chunk 3 len = %d, want %d", s.Len(), 250-192)
	}
	if s.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", s.Remaining())
	}
}

func TestScratchFillCapsAtCapacity(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset(seq(200))
	s.Fill(500)
	if s.Len() != ScratchSize {
		t.Errorf("Len = %d, want %d", s.Len(), ScratchSize)
	}
}

func TestScratchBoundsChecked(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset([]byte{0xAA, 0xBB})
	s.Fill(ScratchSize)
	if got := s.Byte(2); got != 0 {
		t.Errorf("Byte(2) = %d, want 0", got)
	}
	if !s.Overflow() {
		t.Error("expected overflow after out-of-range read")
	}
	if got := s.Uint16(1); got != 0 {
		t.Errorf("Uint16(1) = %#x, want 0", got)
	}
}

func TestScratchResetDiscardsPreviousSegment(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset(bytes.Repeat([]byte{0xFF}, 40))
	s.Fill(ScratchSize)

	s.Reset([]byte{0x01})
	if s.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", s.Len())
	}
	s.Fill(ScratchSize)
	if s.Byte(1) != 0 {
		t.Error("stale byte from previous segment is readable")
	}
}

func TestScratchDrain(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset(seq(300))
	s.Fill(4)
	s.Drain()
	if s.Remaining() != 0 {
		t.Errorf("Remaining after Drain = %d, want 0", s.Remaining())
	}
}
