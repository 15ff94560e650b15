package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zsiec/atemtally/internal/command"
	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/transport"
	"github.com/zsiec/atemtally/internal/wire"
)

type fakeConn struct {
	inbound [][]byte
	sent    [][]byte
	recvErr error
	sendErr error
	okSends int // sends that succeed before sendErr applies
	closed  bool
}

func (c *fakeConn) Recv(buf []byte) (int, bool, error) {
	if c.recvErr != nil {
		return 0, false, c.recvErr
	}
	if len(c.inbound) == 0 {
		return 0, false, nil
	}
	d := c.inbound[0]
	c.inbound = c.inbound[1:]
	return copy(buf, d), true, nil
}

func (c *fakeConn) Send(b []byte) error {
	if c.sendErr != nil && len(c.sent) >= c.okSends {
		return c.sendErr
	}
	c.sent = append(c.sent, bytes.Clone(b))
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) push(d []byte) { c.inbound = append(c.inbound, d) }

func (c *fakeConn) last() []byte {
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Unix(1000, 0)} }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func helloReply(session byte) []byte {
	r := make([]byte, transport.HelloReplySize)
	r[0], r[1] = 0x10, 0x14
	r[transport.SessionIDOffset] = session
	return r
}

func newSession(t *testing.T, opts ...Option) (*Session, *fakeConn, *clock) {
	t.Helper()
	conn := &fakeConn{}
	clk := newClock()
	opts = append([]Option{WithClock(clk.now)}, opts...)
	return New(conn, state.New(), opts...), conn, clk
}

// ready runs the handshake and the end-of-transfer datagram.
func ready(t *testing.T, s *Session, conn *fakeConn) {
	t.Helper()
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.push(helloReply(0xAB))
	conn.push(transport.BuildDatagram(0, 1))
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("State = %v, want ready", s.State())
	}
	conn.sent = nil
}

func TestHandshake(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.State() != Connecting {
		t.Fatalf("State = %v, want connecting", s.State())
	}
	if !bytes.Equal(conn.last(), transport.Hello()) {
		t.Fatalf("sent % X, want hello", conn.last())
	}

	conn.push(helloReply(0xAB))
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if s.State() != Initializing {
		t.Errorf("State = %v, want initializing", s.State())
	}
	if s.SessionID() != 0xAB {
		t.Errorf("SessionID = %#x, want 0xAB", s.SessionID())
	}
	want := []byte{0x80, 0x0C, 0x53, 0xAB, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00}
	if !bytes.Equal(conn.last(), want) {
		t.Errorf("hello ack = % X, want % X", conn.last(), want)
	}
}

func TestHandshakeIgnoresWrongSize(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	_ = s.Connect()

	conn.push(make([]byte, 12))
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if s.State() != Connecting {
		t.Errorf("State = %v, want connecting", s.State())
	}
	if len(conn.sent) != 1 {
		t.Errorf("sent %d datagrams, want only the hello", len(conn.sent))
	}
}

func TestHandshakeTimeout(t *testing.T) {
	t.Parallel()
	s, _, clk := newSession(t)
	_ = s.Connect()

	clk.advance(DefaultHandshakeTimeout)
	_ = s.Poll()
	if s.State() != Connecting {
		t.Fatalf("State = %v at exactly the timeout, want connecting", s.State())
	}

	clk.advance(time.Millisecond)
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll returned %v, want nil", err)
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want disconnected", s.State())
	}
	if !errors.Is(s.LastError(), ErrHandshakeTimeout) {
		t.Errorf("LastError = %v, want ErrHandshakeTimeout", s.LastError())
	}
}

func TestReadyOnBareHeader(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	_ = s.Connect()
	conn.push(helloReply(1))
	conn.push(transport.BuildDatagram(0, 1, transport.Segment{Tag: wire.MakeTag("PrgI"), Payload: []byte{0, 4, 0, 0}}))
	_ = s.Poll()
	if s.Initialized() {
		t.Fatal("initialized before bare header")
	}
	if got := s.Store().ProgramInput(); got != 4 {
		t.Errorf("ProgramInput = %d, want 4", got)
	}

	conn.push(transport.BuildDatagram(0, 2))
	_ = s.Poll()
	if !s.Initialized() || s.State() != Ready {
		t.Errorf("Initialized = %v, State = %v; want true, ready", s.Initialized(), s.State())
	}
}

func TestContactTimeoutOnce(t *testing.T) {
	t.Parallel()
	s, conn, clk := newSession(t)
	ready(t, s, conn)

	clk.advance(DefaultContactTimeout)
	if s.IsConnectionTimedOut() {
		t.Fatal("timed out at exactly the contact timeout")
	}
	clk.advance(time.Millisecond)
	if !s.IsConnectionTimedOut() {
		t.Fatal("IsConnectionTimedOut = false after 10001ms")
	}
	if s.IsConnectionTimedOut() {
		t.Error("IsConnectionTimedOut returned true twice")
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want disconnected", s.State())
	}
}

func TestContactRefreshedByTraffic(t *testing.T) {
	t.Parallel()
	s, conn, clk := newSession(t)
	ready(t, s, conn)

	clk.advance(9 * time.Second)
	conn.push(transport.BuildDatagram(0, 5))
	_ = s.Poll()
	clk.advance(9 * time.Second)
	if s.IsConnectionTimedOut() {
		t.Error("timed out despite recent traffic")
	}
}

func TestAckEchoesRemoteID(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	conn.push(transport.BuildDatagram(transport.FlagAckRequest, 0x1234))
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	ack := conn.last()
	if len(ack) != transport.HeaderSize {
		t.Fatalf("ack length = %d, want 12", len(ack))
	}
	if ack[0] != 0x80 || ack[1] != 0x0C || ack[2] != 0x80 || ack[3] != 0xAB || ack[9] != 0x41 {
		t.Errorf("ack = % X", ack)
	}
	if got := binary.BigEndian.Uint16(ack[4:6]); got != 0x1234 {
		t.Errorf("acked id = %#x, want 0x1234", got)
	}
	if got := s.LastRemotePacketID(); got != 0x1234 {
		t.Errorf("LastRemotePacketID = %#x, want 0x1234", got)
	}
}

func TestAckPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		strict  bool
		wantAck bool
	}{
		{"lenient acks during transfer", false, true},
		{"strict waits for ready", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, conn, _ := newSession(t, WithStrictAck(tt.strict))
			_ = s.Connect()
			conn.push(helloReply(7))
			conn.push(transport.BuildDatagram(transport.FlagAckRequest, 3,
				transport.Segment{Tag: wire.MakeTag("TrPr"), Payload: []byte{0, 1, 0, 0}}))
			_ = s.Poll()

			// hello + hello ack, then the ack if any.
			gotAck := len(conn.sent) == 3
			if gotAck != tt.wantAck {
				t.Errorf("acked = %v, want %v (sent %d)", gotAck, tt.wantAck, len(conn.sent))
			}
		})
	}
}

func TestDesyncDropped(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	bad := transport.BuildDatagram(transport.FlagAckRequest, 9)
	bad = append(bad, 0xFF) // declared length no longer matches
	conn.push(bad)
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(conn.sent) != 0 {
		t.Errorf("sent %d datagrams for a desynced packet", len(conn.sent))
	}
	if got := s.LastRemotePacketID(); got == 9 {
		t.Error("desynced datagram updated remote packet ID")
	}
}

func TestCommandFramingAndCounter(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	if err := s.ChangeProgramInput(9); err != nil {
		t.Fatalf("ChangeProgramInput: %v", err)
	}
	if err := s.Cut(); err != nil {
		t.Fatalf("Cut: %v", err)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d datagrams, want 2", len(conn.sent))
	}

	first := conn.sent[0]
	if len(first) != 24 {
		t.Fatalf("command length = %d, want 24", len(first))
	}
	if first[0] != 0x08 || first[1] != 24 || first[2] != 0x80 || first[3] != 0xAB {
		t.Errorf("header = % X", first[:4])
	}
	if id := binary.BigEndian.Uint16(first[10:12]); id != 1 {
		t.Errorf("first packet id = %d, want 1", id)
	}
	if !bytes.Equal(first[12:], []byte{0x00, 0x0C, 0x00, 0x00, 'C', 'P', 'g', 'I', 0x00, 0x09, 0x00, 0x00}) {
		t.Errorf("segment = % X", first[12:])
	}
	if id := binary.BigEndian.Uint16(conn.sent[1][10:12]); id != 2 {
		t.Errorf("second packet id = %d, want 2", id)
	}
	if s.NextPacketID() != 3 {
		t.Errorf("NextPacketID = %d, want 3", s.NextPacketID())
	}
}

func TestPacketIDsNeverReused(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	const sends = 0xFFFF
	seen := make(map[uint16]bool, sends)
	for i := range sends {
		if err := s.Cut(); err != nil {
			t.Fatalf("Cut #%d: %v", i+1, err)
		}
		id := binary.BigEndian.Uint16(conn.last()[10:12])
		if id == 0 || seen[id] {
			t.Fatalf("Cut #%d reused packet id %d", i+1, id)
		}
		seen[id] = true
	}
	if s.NextPacketID() != 0 {
		t.Errorf("NextPacketID = %d, want 0 once exhausted", s.NextPacketID())
	}

	err := s.Cut()
	if !errors.Is(err, transport.ErrPacketIDsExhausted) {
		t.Fatalf("Cut after exhaustion: err = %v, want ErrPacketIDsExhausted", err)
	}
	if len(conn.sent) != sends {
		t.Errorf("sent %d datagrams, want %d", len(conn.sent), sends)
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want disconnected", s.State())
	}
	if !errors.Is(s.LastError(), transport.ErrPacketIDsExhausted) {
		t.Errorf("LastError = %v", s.LastError())
	}

	ready(t, s, conn)
	if s.NextPacketID() != 1 {
		t.Errorf("NextPacketID after reconnect = %d, want 1", s.NextPacketID())
	}
	if err := s.Cut(); err != nil {
		t.Errorf("Cut after reconnect: %v", err)
	}
}

func TestMediaPlayerSourceCompanionFailure(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)
	conn.sendErr = errors.New("network down")
	conn.okSends = 1

	err := s.ChangeMediaPlayerSource(1, false, 3)
	if err == nil {
		t.Fatal("ChangeMediaPlayerSource succeeded with a failing second send")
	}
	if !strings.Contains(err.Error(), "MPSS companion") {
		t.Errorf("err = %v, want it to name the companion command", err)
	}
	if len(conn.sent) != 1 {
		t.Errorf("sent %d datagrams, want 1", len(conn.sent))
	}

	conn.sent = nil
	conn.okSends = 0
	err = s.ChangeMediaPlayerSource(1, false, 3)
	if err == nil || strings.Contains(err.Error(), "companion") {
		t.Errorf("first send failure: err = %v", err)
	}
}

func TestCommandUsesWideEncodingAfterVersion(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)
	conn.push(transport.BuildDatagram(0, 2, transport.Segment{Tag: wire.MakeTag("_ver"), Payload: []byte{0, 2, 0, 12}}))
	_ = s.Poll()

	if err := s.ChangeProgramInput(9); err != nil {
		t.Fatalf("ChangeProgramInput: %v", err)
	}
	if got := conn.last()[20:24]; !bytes.Equal(got, []byte{0, 0, 0, 9}) {
		t.Errorf("payload = % X, want 00 00 00 09", got)
	}
}

func TestRejectedCommandSendsNothing(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	err := s.ChangeDownstreamKeyerOn(3, true)
	if !errors.Is(err, command.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if len(conn.sent) != 0 {
		t.Errorf("sent %d datagrams, want 0", len(conn.sent))
	}
	if s.NextPacketID() != 1 {
		t.Errorf("NextPacketID = %d, want 1", s.NextPacketID())
	}
}

func TestCommandBeforeHandshake(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	if err := s.Cut(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if len(conn.sent) != 0 {
		t.Errorf("sent %d datagrams, want 0", len(conn.sent))
	}
}

func TestMediaPlayerSourceSendsPair(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	ready(t, s, conn)

	if err := s.ChangeMediaPlayerSource(1, false, 3); err != nil {
		t.Fatalf("ChangeMediaPlayerSource: %v", err)
	}
	if len(conn.sent) != 2 {
		t.Fatalf("sent %d datagrams, want 2", len(conn.sent))
	}
	if len(conn.sent[0]) != 12+8+12 || len(conn.sent[1]) != 12+8+8 {
		t.Errorf("lengths = %d, %d", len(conn.sent[0]), len(conn.sent[1]))
	}
}

func TestDisconnectedDrains(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	conn.push(transport.BuildDatagram(transport.FlagAckRequest, 1))
	conn.push(helloReply(1))
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(conn.inbound) != 0 || len(conn.sent) != 0 {
		t.Errorf("inbound %d, sent %d; want drained and silent", len(conn.inbound), len(conn.sent))
	}
}

func TestRecvErrorReturned(t *testing.T) {
	t.Parallel()
	s, conn, _ := newSession(t)
	boom := errors.New("boom")
	conn.recvErr = boom
	if err := s.Poll(); !errors.Is(err, boom) {
		t.Errorf("Poll err = %v, want boom", err)
	}
}

func TestSetMeterChannel(t *testing.T) {
	t.Parallel()
	s, _, _ := newSession(t)
	if err := s.SetMeterChannel(12); err != nil {
		t.Fatalf("SetMeterChannel(12): %v", err)
	}
	if got := s.Store().MeterChannel(); got != 12 {
		t.Errorf("MeterChannel = %d, want 12", got)
	}
	if err := s.SetMeterChannel(13); !errors.Is(err, command.ErrOutOfRange) {
		t.Errorf("SetMeterChannel(13) err = %v, want ErrOutOfRange", err)
	}
}

func TestContactTimeoutRaisedAboveHandshake(t *testing.T) {
	t.Parallel()
	s, _, _ := newSession(t, WithHandshakeTimeout(time.Second), WithContactTimeout(time.Second))
	if s.contactTimeout <= s.handshakeTimeout {
		t.Errorf("contact %v <= handshake %v", s.contactTimeout, s.handshakeTimeout)
	}
}
