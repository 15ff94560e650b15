package wire

import (
	"encoding/binary"
	"fmt"
)

// wideMinor is the first 2.x firmware minor that widened source fields to
// 16 bits (firmware 2.12 ships with control software 4.2).
const wideMinor = 12

// Version is the switcher firmware version learned from the _ver segment.
type Version struct {
	Major uint8
	Minor uint8
}

// Wide reports whether this firmware uses 2-byte source indices.
func (v Version) Wide() bool {
	return v.Major > 2 || (v.Major == 2 && v.Minor >= wideMinor)
}

// String formats the version as major.minor.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Encoding is the wire encoding strategy for source/selector fields. Resolve
// it with EncodingFor from the version currently held in the state store;
// the version can change mid-session so an Encoding should not outlive the
// segment or command it was resolved for.
type Encoding struct {
	wide bool
}

// Narrow is the pre-2.12 encoding with single-byte source fields.
var Narrow = Encoding{}

// Wide is the 2.12+ encoding with big-endian 16-bit source fields at [2:4].
var Wide = Encoding{wide: true}

// EncodingFor returns the encoding used by firmware v.
func EncodingFor(v Version) Encoding {
	if v.Wide() {
		return Wide
	}
	return Narrow
}

// IsWide reports whether source fields are 16 bits wide.
func (e Encoding) IsWide() bool { return e.wide }

// String returns "wide" or "narrow".
func (e Encoding) String() string {
	if e.wide {
		return "wide"
	}
	return "narrow"
}

// PutSource writes src into b. The narrow form stores a single byte at
// narrowAt; the wide form stores a big-endian uint16 at b[2:4]. It returns
// false when src does not fit the narrow form.
func (e Encoding) PutSource(b []byte, narrowAt int, src uint16) bool {
	if e.wide {
		binary.BigEndian.PutUint16(b[2:4], src)
		return true
	}
	if src > 0xFF {
		return false
	}
	b[narrowAt] = byte(src)
	return true
}

// Source reads a source field from the current scratch chunk using the same
// layout as PutSource.
func (e Encoding) Source(s *Scratch, narrowAt int) uint16 {
	if e.wide {
		return s.Uint16(2)
	}
	return uint16(s.Byte(narrowAt))
}
