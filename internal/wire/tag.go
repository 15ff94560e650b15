package wire

import "fmt"

// Tag is the four-character ASCII name of a segment or command.
type Tag [4]byte

// MakeTag converts a four-character string to a Tag. It panics on any other
// length and is intended for package-level constants.
func MakeTag(s string) Tag {
	t, err := ParseTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTag converts s to a Tag.
func ParseTag(s string) (Tag, error) {
	var t Tag
	if len(s) != len(t) {
		return t, fmt.Errorf("wire: tag %q must be %d bytes", s, len(t))
	}
	copy(t[:], s)
	return t, nil
}

// String returns the four tag characters.
func (t Tag) String() string {
	return string(t[:])
}
