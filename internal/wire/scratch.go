package wire

import "encoding/binary"

// ScratchSize is the capacity of the scratch buffer. Segment payloads
// larger than this are consumed in successive chunks.
const ScratchSize = 96

// Scratch is a bounded, reusable view over one segment payload. Fill copies
// the next chunk of the segment into a fixed 96-byte buffer; Byte and Uint16
// read from that chunk with bounds checks. Reset starts a new segment and
// discards everything from the previous one.
//
// A Scratch is owned by exactly one parser and is not safe for concurrent
// use.
type Scratch struct {
	buf      [ScratchSize]byte
	n        int
	seg      []byte
	pos      int
	overflow bool
}

// Reset points the scratch at a new segment payload and clears the buffer.
func (s *Scratch) Reset(segment []byte) {
	s.seg = segment
	s.pos = 0
	s.n = 0
	s.overflow = false
	clear(s.buf[:])
}

// Fill replaces the buffer contents with the next chunk of at most max bytes
// (capped at ScratchSize). It returns true while the segment still has
// unread bytes after this chunk.
func (s *Scratch) Fill(max int) bool {
	if max > ScratchSize {
		max = ScratchSize
	}
	remaining := s.Remaining()
	if remaining <= 0 {
		s.n = 0
		return false
	}
	n := min(max, remaining)
	copy(s.buf[:n], s.seg[s.pos:s.pos+n])
	clear(s.buf[n:])
	s.n = n
	s.pos += n
	return s.pos < len(s.seg)
}

// Drain consumes the rest of the segment in buffer-sized chunks.
func (s *Scratch) Drain() {
	for s.Fill(ScratchSize) {
	}
}

// Remaining returns the number of unread bytes in the current segment.
func (s *Scratch) Remaining() int {
	return len(s.seg) - s.pos
}

// Len returns the number of valid bytes in the current chunk.
func (s *Scratch) Len() int {
	return s.n
}

// Overflow reports whether any read since Reset went past the valid chunk.
func (s *Scratch) Overflow() bool {
	return s.overflow
}

// Byte returns byte i of the current chunk, or 0 if i is out of range.
func (s *Scratch) Byte(i int) byte {
	if i < 0 || i >= s.n {
		s.overflow = true
		return 0
	}
	return s.buf[i]
}

// Uint16 returns the big-endian word at i of the current chunk, or 0 if it
// is out of range.
func (s *Scratch) Uint16(i int) uint16 {
	if i < 0 || i+2 > s.n {
		s.overflow = true
		return 0
	}
	return binary.BigEndian.Uint16(s.buf[i : i+2])
}

// Bytes returns a copy-free view of bytes [i, i+n) of the current chunk,
// truncated to the valid length.
func (s *Scratch) Bytes(i, n int) []byte {
	if i < 0 || i >= s.n {
		s.overflow = true
		return nil
	}
	end := i + n
	if end > s.n {
		s.overflow = true
		end = s.n
	}
	return s.buf[i:end]
}
