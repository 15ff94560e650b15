package transport

import (
	"encoding/binary"
	"strings"
)

// HeaderSize is the size of the header at the start of every datagram.
const HeaderSize = 12

// maxLength is the largest value the 11-bit length field can carry.
const maxLength = 0x07FF

// Flags are the five high bits of header byte 0.
type Flags uint8

// Header flag bits, as masks on byte 0.
const (
	FlagAckRequest Flags = 0x08 // peer wants this datagram acknowledged
	FlagInit       Flags = 0x10 // handshake phase, carries no segments
	FlagRetransmit Flags = 0x20
	FlagHello      Flags = 0x40
	FlagResponse   Flags = 0x80
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// String lists the set flags for logs.
func (f Flags) String() string {
	var parts []string
	if f.Has(FlagAckRequest) {
		parts = append(parts, "ack")
	}
	if f.Has(FlagInit) {
		parts = append(parts, "init")
	}
	if f.Has(FlagRetransmit) {
		parts = append(parts, "retransmit")
	}
	if f.Has(FlagHello) {
		parts = append(parts, "hello")
	}
	if f.Has(FlagResponse) {
		parts = append(parts, "response")
	}
	return strings.Join(parts, "|")
}

// Header is a decoded datagram header.
type Header struct {
	Length   uint16
	Flags    Flags
	Session  uint16
	AckedID  uint16
	PacketID uint16 // remote packet ID, meaningful when FlagAckRequest is set
}

// AckRequested reports whether the peer asked for an acknowledgement.
func (h Header) AckRequested() bool { return h.Flags.Has(FlagAckRequest) }

// Init reports whether the datagram belongs to the handshake phase.
func (h Header) Init() bool { return h.Flags.Has(FlagInit) }

// HasSegments reports whether the body should be handed to the parser.
func (h Header) HasSegments() bool {
	return h.Length > HeaderSize && !h.Init()
}

// DecodeHeader decodes the header of datagram and checks that the declared
// length matches the received size.
func DecodeHeader(datagram []byte) (Header, error) {
	if len(datagram) < HeaderSize {
		return Header{}, &DesyncError{Declared: 0, Actual: len(datagram), Err: ErrShortDatagram}
	}
	h := Header{
		Length:   uint16(datagram[0]&0x07)<<8 | uint16(datagram[1]),
		Flags:    Flags(datagram[0] & 0xF8),
		Session:  binary.BigEndian.Uint16(datagram[2:4]),
		AckedID:  binary.BigEndian.Uint16(datagram[4:6]),
		PacketID: binary.BigEndian.Uint16(datagram[10:12]),
	}
	if int(h.Length) != len(datagram) {
		return h, &DesyncError{Declared: int(h.Length), Actual: len(datagram), Err: ErrLengthMismatch}
	}
	return h, nil
}

func putLength(b []byte, flags Flags, length int) {
	b[0] = byte(flags) | byte(length>>8)&0x07
	b[1] = byte(length)
}
