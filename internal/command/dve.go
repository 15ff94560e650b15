package command

import "encoding/binary"

// CKDV carries the whole DVE keyer configuration in one 64-byte payload.
// The leading bytes select which fields the switcher applies; the rest of
// each template is what the switcher itself reports for an untouched key.

const dveSize = 64

// dveDefaults is the tail shared by the position and rate templates,
// starting at byte 24.
var dveDefaults = [...]byte{
	0xBF, 0xFF, 0xDB, 0x7F, 0xC2, 0xA2, 0x09, 0x90,
	0xDB, 0x7E, 0xBF, 0xFF, 0x82, 0x34, 0x2E, 0x0B,
	0x05, 0x00, 0x00, 0x00, 0x34, 0xC1, 0x00, 0x2C,
	0xE2, 0x00, 0x4E, 0x02, 0xA3, 0x98, 0xAC, 0x02,
	0xDB, 0xD9, 0xBF, 0xFF, 0x74, 0x34, 0xE9, 0x01,
}

// DVE field-select bits.
const (
	dveSelectPosition = 0x0F
	dveSelectBorder   = 0x20
	dveSelectRate     = 0x04
	dveSelectMask     = 0x03
	dveMaskFields     = 0xE0
)

// DVEPosition places the DVE key. x and y are signed positions, w and h
// sizes, all in the switcher's fixed-point units.
func (e *Encoder) DVEPosition(x, y int32, w, h uint16) (Command, error) {
	p := make([]byte, dveSize)
	p[3] = dveSelectPosition
	binary.BigEndian.PutUint16(p[10:12], w)
	binary.BigEndian.PutUint16(p[14:16], h)
	binary.BigEndian.PutUint32(p[16:20], uint32(x))
	binary.BigEndian.PutUint32(p[20:24], uint32(y))
	copy(p[24:], dveDefaults[:])
	return cmd(tagDVE, p...), nil
}

// DVEMask crops the DVE key.
func (e *Encoder) DVEMask(m Mask) (Command, error) {
	p := make([]byte, dveSize)
	p[0] = dveSelectMask
	p[1] = dveMaskFields
	p[51] = 0x01
	putMask(p[52:60], m)
	return cmd(tagDVE, p...), nil
}

// DVEBorder toggles the DVE border.
func (e *Encoder) DVEBorder(on bool) (Command, error) {
	p := make([]byte, dveSize)
	p[3] = dveSelectBorder
	p[28] = b2u(on)
	return cmd(tagDVE, p...), nil
}

// DVERate sets the DVE key frame rate in frames.
func (e *Encoder) DVERate(frames uint8) (Command, error) {
	p := make([]byte, dveSize)
	p[0] = dveSelectRate
	copy(p[24:], dveDefaults[:])
	p[60] = frames
	return cmd(tagDVE, p...), nil
}

// DVERunKeyFrame runs the DVE to a key frame: 1 A, 2 B, 3 full, 4 infinite.
func (e *Encoder) DVERunKeyFrame(run int) (Command, error) {
	if err := checkRange("key frame", run, 1, MaxRunKeyFrame); err != nil {
		return Command{}, err
	}
	return cmd(tagRunKeyFrame, 0x02, 0x00, 0x00, 0x02, 0x00, byte(run), 0xFF, 0xFF), nil
}
