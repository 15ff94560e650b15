package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// MaxDatagramSize bounds a single inbound datagram (11-bit length field).
const MaxDatagramSize = maxLength

// recvWait is how long Recv waits for a pending datagram. A deadline that
// has already passed fails before the socket is read, so it must be in the
// future.
const recvWait = time.Millisecond

// Conn is the datagram primitive the session drives. Recv must never block:
// when nothing is pending it returns ok=false with a nil error.
type Conn interface {
	Recv(buf []byte) (n int, ok bool, err error)
	Send(b []byte) error
	Close() error
}

// UDPConn adapts a connected *net.UDPConn to Conn using a short read
// deadline for non-blocking polls.
type UDPConn struct {
	conn *net.UDPConn
}

// DialUDP opens a UDP socket bound to localPort (0 picks an ephemeral port)
// and connected to the switcher at host. A host without a port uses
// ControlPort.
func DialUDP(host string, localPort int) (*UDPConn, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(ControlPort))
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	var laddr *net.UDPAddr
	if localPort > 0 {
		laddr = &net.UDPAddr{Port: localPort}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &UDPConn{conn: conn}, nil
}

// Recv reads one pending datagram into buf.
func (c *UDPConn) Recv(buf []byte) (int, bool, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(recvWait)); err != nil {
		return 0, false, err
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

// Send writes one datagram.
func (c *UDPConn) Send(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the bound local address.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
