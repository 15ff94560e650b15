// Package session runs the switcher connection lifecycle: handshake,
// readiness detection, acknowledgement of inbound datagrams, contact
// timeout and outbound command framing.
//
// A Session is driven by calling Poll repeatedly (at least twice a second).
// It is not safe for concurrent use; callers serialize access, which the
// driver package does with a mutex.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zsiec/atemtally/internal/metrics"
	"github.com/zsiec/atemtally/internal/parser"
	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/transport"
	"github.com/zsiec/atemtally/internal/wire"
)

// Sentinel errors for the connection lifecycle.
var (
	ErrNotConnected     = errors.New("session: handshake not complete")
	ErrHandshakeTimeout = errors.New("session: no handshake reply from switcher")
)

// Default timeouts. The contact timeout must exceed the handshake timeout.
const (
	DefaultHandshakeTimeout = 2000 * time.Millisecond
	DefaultContactTimeout   = 10000 * time.Millisecond
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Initializing
	Ready
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) { s.handshakeTimeout = d }
}

// WithContactTimeout overrides DefaultContactTimeout.
func WithContactTimeout(d time.Duration) Option {
	return func(s *Session) { s.contactTimeout = d }
}

// WithStrictAck only acknowledges datagrams once the session is Ready. The
// default acknowledges as soon as the handshake reply has been accepted.
func WithStrictAck(strict bool) Option {
	return func(s *Session) { s.strictAck = strict }
}

// WithVerbose enables debug tracing of handshake, ack and segment events.
func WithVerbose(v bool) Option {
	return func(s *Session) { s.verbose = v }
}

// WithMetrics records session activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one connection to a switcher.
type Session struct {
	conn    transport.Conn
	store   *state.Store
	parser  *parser.Parser
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	handshakeTimeout time.Duration
	contactTimeout   time.Duration
	strictAck        bool
	verbose          bool

	state       State
	sessionID   uint8
	counter     *transport.PacketCounter
	remoteID    uint16
	initialized bool
	attemptAt   time.Time
	lastContact time.Time // zero when no contact is being tracked
	lastErr     error
	rx          [transport.MaxDatagramSize]byte
	tx          []byte
}

// New creates a disconnected Session over conn that mirrors into store.
func New(conn transport.Conn, store *state.Store, opts ...Option) *Session {
	s := &Session{
		conn:             conn,
		store:            store,
		log:              slog.Default(),
		now:              time.Now,
		handshakeTimeout: DefaultHandshakeTimeout,
		contactTimeout:   DefaultContactTimeout,
		counter:          transport.NewPacketCounter(),
		tx:               make([]byte, 0, transport.HeaderSize+transport.SegmentHeaderSize+transport.MaxCommandPayload),
	}
	for _, opt := range opts {
		opt(s)
	}
	base := s.log
	s.log = base.With("component", "session")
	if s.contactTimeout <= s.handshakeTimeout {
		s.log.Warn("contact timeout must exceed handshake timeout, using default ratio",
			"contact", s.contactTimeout, "handshake", s.handshakeTimeout)
		s.contactTimeout = 5 * s.handshakeTimeout
	}
	s.parser = parser.New(store,
		parser.WithLogger(base),
		parser.WithVerbose(s.verbose),
		parser.WithObserver(func(_ wire.Tag, _ parser.Kind, o parser.Outcome) {
			s.metrics.Segment(o.String())
		}),
	)
	return s
}

// Connect starts a new handshake. It may be called in any state; the
// previous session is abandoned.
func (s *Session) Connect() error {
	s.counter.Reset()
	s.initialized = false
	s.sessionID = 0
	s.remoteID = 0
	s.lastErr = nil
	now := s.now()
	s.attemptAt = now
	s.lastContact = now
	s.setState(Connecting)

	if err := s.conn.Send(transport.Hello()); err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("session: send hello: %w", err)
	}
	s.metrics.DatagramSent("hello")
	if s.verbose {
		s.log.Debug("hello sent")
	}
	return nil
}

// Poll drains every pending datagram and advances the state machine.
// Socket errors are returned; framing problems are logged and dropped.
func (s *Session) Poll() error {
	for {
		n, ok, err := s.conn.Recv(s.rx[:])
		if err != nil {
			return fmt.Errorf("session: recv: %w", err)
		}
		if !ok {
			break
		}
		s.metrics.DatagramReceived()
		if err := s.handle(s.rx[:n]); err != nil {
			return err
		}
	}

	if s.state == Connecting && s.now().Sub(s.attemptAt) > s.handshakeTimeout {
		s.lastErr = ErrHandshakeTimeout
		s.metrics.Handshake("timeout")
		s.log.Warn("handshake timed out", "after", s.handshakeTimeout)
		s.setState(Disconnected)
	}
	return nil
}

func (s *Session) handle(d []byte) error {
	switch s.state {
	case Disconnected:
		return nil
	case Connecting:
		return s.handleHandshake(d)
	}

	h, err := transport.DecodeHeader(d)
	if err != nil {
		s.metrics.Desync()
		s.log.Debug("dropping datagram", "error", err)
		return nil
	}
	s.lastContact = s.now()
	s.remoteID = h.PacketID

	if !s.initialized && len(d) == transport.HeaderSize {
		s.initialized = true
		s.setState(Ready)
		s.log.Info("switcher state transfer complete",
			"name", s.store.Name(), "version", s.store.Version().String())
	}

	if h.HasSegments() {
		if _, err := s.parser.Parse(d); err != nil {
			s.metrics.Desync()
			s.log.Debug("segment walk aborted", "error", err)
		}
	}

	if h.AckRequested() && (!s.strictAck || s.state == Ready) {
		if err := s.sendAck(h.PacketID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleHandshake(d []byte) error {
	id, ok := transport.SessionFromReply(d)
	if !ok {
		if s.verbose {
			s.log.Debug("ignoring datagram while connecting", "size", len(d))
		}
		return nil
	}
	s.sessionID = id
	if err := s.conn.Send(transport.HelloAck()); err != nil {
		return fmt.Errorf("session: send hello ack: %w", err)
	}
	s.metrics.DatagramSent("hello_ack")
	s.metrics.Handshake("ok")
	s.lastContact = s.now()
	s.setState(Initializing)
	s.log.Info("handshake accepted", "session", id)
	return nil
}

func (s *Session) sendAck(remoteID uint16) error {
	s.tx = transport.AppendAck(s.tx[:0], s.sessionID, remoteID)
	if err := s.conn.Send(s.tx); err != nil {
		return fmt.Errorf("session: send ack: %w", err)
	}
	s.metrics.DatagramSent("ack")
	if s.verbose {
		s.log.Debug("ack", "remote_id", remoteID)
	}
	return nil
}

// IsConnectionTimedOut reports true once when nothing has been received
// for longer than the contact timeout. The session is then Disconnected
// and the caller is expected to Connect again.
func (s *Session) IsConnectionTimedOut() bool {
	if s.lastContact.IsZero() || s.now().Sub(s.lastContact) <= s.contactTimeout {
		return false
	}
	s.lastContact = time.Time{}
	s.initialized = false
	s.metrics.ContactTimeout()
	s.log.Warn("switcher contact lost", "after", s.contactTimeout)
	s.setState(Disconnected)
	return true
}

func (s *Session) setState(st State) {
	if s.state != st && s.verbose {
		s.log.Debug("state", "from", s.state.String(), "to", st.String())
	}
	s.state = st
	s.metrics.SessionState(int(st))
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// SessionID returns the session byte the switcher assigned.
func (s *Session) SessionID() uint8 { return s.sessionID }

// LastRemotePacketID is the packet ID of the last accepted datagram.
func (s *Session) LastRemotePacketID() uint16 { return s.remoteID }

// Initialized reports whether the initial state transfer has finished.
func (s *Session) Initialized() bool { return s.initialized }

// NextPacketID is the local packet ID the next command will carry.
func (s *Session) NextPacketID() uint16 { return s.counter.Peek() }

// Store returns the mirrored switcher state.
func (s *Session) Store() *state.Store { return s.store }

// Encoding is the wire encoding for the firmware currently reported.
func (s *Session) Encoding() wire.Encoding { return s.store.Encoding() }

// LastError returns the most recent lifecycle failure, such as
// ErrHandshakeTimeout. Connect clears it.
func (s *Session) LastError() error { return s.lastErr }

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.setState(Disconnected)
	return s.conn.Close()
}
