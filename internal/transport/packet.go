package transport

import (
	"encoding/binary"

	"github.com/zsiec/atemtally/internal/wire"
)

// ControlPort is the switcher's well-known UDP control port.
const ControlPort = 9910

// Handshake framing.
const (
	HelloSize       = 20
	HelloReplySize  = 20
	HelloAckSize    = 12
	SessionIDOffset = 15
)

// maxPacketID is the last local packet ID before the counter is exhausted.
const maxPacketID = 0xFFFF

// Command segment framing.
const (
	SegmentHeaderSize = 8
	MaxCommandPayload = 64
)

var hello = [HelloSize]byte{
	0x10, 0x14, 0x53, 0xAB, 0x00, 0x00, 0x00, 0x00, 0x00, 0x3A,
	0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var helloAck = [HelloAckSize]byte{
	0x80, 0x0C, 0x53, 0xAB, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00,
}

// Hello returns the fixed connect datagram sent on every connection attempt.
func Hello() []byte {
	b := hello
	return b[:]
}

// HelloAck returns the fixed datagram acknowledging the handshake reply.
func HelloAck() []byte {
	b := helloAck
	return b[:]
}

// SessionFromReply extracts the session identifier from a handshake reply.
func SessionFromReply(reply []byte) (uint8, bool) {
	if len(reply) != HelloReplySize {
		return 0, false
	}
	return reply[SessionIDOffset], true
}

// AppendAck appends an acknowledgement of remoteID to dst.
func AppendAck(dst []byte, sessionID uint8, remoteID uint16) []byte {
	var b [HeaderSize]byte
	putLength(b[:], FlagResponse, HeaderSize)
	b[2] = 0x80
	b[3] = sessionID
	binary.BigEndian.PutUint16(b[4:6], remoteID)
	b[9] = 0x41
	return append(dst, b[:]...)
}

// AppendCommand appends a single-segment command datagram to dst. The
// payload must be 1..MaxCommandPayload bytes.
func AppendCommand(dst []byte, sessionID uint8, packetID uint16, tag wire.Tag, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxCommandPayload {
		return dst, ErrPayloadSize
	}
	segLen := SegmentHeaderSize + len(payload)
	total := HeaderSize + segLen

	var h [HeaderSize + SegmentHeaderSize]byte
	putLength(h[:], FlagAckRequest, total)
	h[2] = 0x80
	h[3] = sessionID
	binary.BigEndian.PutUint16(h[10:12], packetID)
	binary.BigEndian.PutUint16(h[12:14], uint16(segLen))
	copy(h[16:20], tag[:])

	dst = append(dst, h[:]...)
	return append(dst, payload...), nil
}

// Segment is one tagged record inside a datagram body.
type Segment struct {
	Tag     wire.Tag
	Payload []byte
}

// AppendSegment appends a segment (sub-header plus payload) to dst. It is
// the inverse of the parser's segment walk and is used to build datagrams
// in tests and simulators.
func AppendSegment(dst []byte, tag wire.Tag, payload []byte) []byte {
	var h [SegmentHeaderSize]byte
	binary.BigEndian.PutUint16(h[0:2], uint16(SegmentHeaderSize+len(payload)))
	copy(h[4:8], tag[:])
	dst = append(dst, h[:]...)
	return append(dst, payload...)
}

// BuildDatagram frames segments behind a header with the given flags and
// remote packet ID.
func BuildDatagram(flags Flags, packetID uint16, segments ...Segment) []byte {
	b := make([]byte, HeaderSize)
	for _, s := range segments {
		b = AppendSegment(b, s.Tag, s.Payload)
	}
	putLength(b, flags, len(b))
	binary.BigEndian.PutUint16(b[10:12], packetID)
	return b
}

// PacketCounter hands out local packet IDs. IDs start at 1 and advance after
// every send whether or not the peer acknowledges it. An ID is never handed
// out twice between resets: after 0xFFFF the counter is exhausted and the
// session has to be re-established.
type PacketCounter struct {
	next      uint16
	exhausted bool
}

// NewPacketCounter returns a counter starting at 1.
func NewPacketCounter() *PacketCounter {
	return &PacketCounter{next: 1}
}

// Reset restarts the sequence at 1.
func (c *PacketCounter) Reset() {
	c.next = 1
	c.exhausted = false
}

// Peek returns the ID the next send will use, or 0 once the counter is
// exhausted.
func (c *PacketCounter) Peek() uint16 {
	if c.exhausted {
		return 0
	}
	return c.next
}

// Exhausted reports whether every ID has been used since the last Reset.
func (c *PacketCounter) Exhausted() bool {
	return c.exhausted
}

// Next returns the current ID and advances the counter. It returns
// ErrPacketIDsExhausted instead of wrapping to an ID already used.
func (c *PacketCounter) Next() (uint16, error) {
	if c.exhausted {
		return 0, ErrPacketIDsExhausted
	}
	id := c.next
	if id == maxPacketID {
		c.exhausted = true
	} else {
		c.next++
	}
	return id, nil
}
