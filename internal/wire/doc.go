// Package wire holds the low-level primitives shared by the ATEM frame
// parser and command encoder: the firmware [Version], the [Encoding] that
// decides whether source fields are one or two bytes wide, the bounded
// [Scratch] view used to read segment payloads in chunks, and [Tag].
package wire
