// Package transport implements ATEM datagram framing: the 12-byte packet
// header, the fixed handshake datagrams, acknowledgement and command packet
// assembly, local packet-ID tracking, and the non-blocking datagram [Conn]
// the session polls.
package transport
