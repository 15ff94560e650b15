package tally

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/zsiec/atemtally/internal/certs"
)

// ALPN is the application protocol negotiated on tally connections.
const ALPN = "atem-tally"

// QUIC application error codes sent when closing an indicator connection.
const (
	errCodeShutdown quic.ApplicationErrorCode = 0
	errCodeStream   quic.ApplicationErrorCode = 1
)

const subscriberQueue = 16

// ServerConfig configures a tally Server.
type ServerConfig struct {
	Addr string
	Cert *certs.CertInfo
	Hub  *Hub
	Log  *slog.Logger
}

// Server accepts QUIC connections from tally indicators and pushes frames
// on one unidirectional stream per connection.
type Server struct {
	config ServerConfig
	log    *slog.Logger

	mu sync.Mutex
	ln *quic.Listener
}

// NewServer validates config and returns a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("tally: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("tally: Addr is required")
	}
	if config.Hub == nil {
		return nil, errors.New("tally: Hub is required")
	}
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{config: config, log: log.With("component", "tally-server")}, nil
}

// Listen binds the UDP socket. ListenAndServe calls it when needed.
func (s *Server) Listen() error {
	ln, err := quic.ListenAddr(s.config.Addr, s.config.Cert.ServerConfig(ALPN), &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("tally: listen %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe accepts indicator connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	s.log.Info("tally server listening", "addr", ln.Addr().String(),
		"fingerprint", s.config.Cert.FingerprintHex())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tally: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn quic.Connection) {
	log := s.log.With("remote", conn.RemoteAddr().String())

	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		log.Warn("open stream failed", "error", err)
		conn.CloseWithError(errCodeStream, "open stream")
		return
	}

	q := newQueue(subscriberQueue)
	s.config.Hub.Add(q, "quic")
	defer s.config.Hub.Remove(q.ID())

	w := bufio.NewWriter(stream)
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			stream.Close()
			conn.CloseWithError(errCodeShutdown, "server shutting down")
			return
		case <-conn.Context().Done():
			log.Debug("indicator disconnected")
			return
		case f := <-q.ch:
			buf = AppendFrame(buf[:0], f)
			if _, err := w.Write(buf); err == nil {
				err = w.Flush()
			}
			if err != nil {
				log.Debug("write failed", "error", err)
				conn.CloseWithError(errCodeStream, "write failed")
				return
			}
		}
	}
}

// Client is an indicator-side connection to a tally Server.
type Client struct {
	conn   quic.Connection
	stream quic.ReceiveStream
	r      *bufio.Reader
}

// Dial connects to a tally server and waits for its frame stream. A nil
// tlsConf skips certificate verification; use certs.PinnedClientConfig to
// pin the server's fingerprint.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config) (*Client, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13}
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("tally: dial %s: %w", addr, err)
	}
	stream, err := conn.AcceptUniStream(ctx)
	if err != nil {
		conn.CloseWithError(errCodeStream, "accept stream")
		return nil, fmt.Errorf("tally: accept stream: %w", err)
	}
	return &Client{conn: conn, stream: stream, r: bufio.NewReader(stream)}, nil
}

// Next blocks until the next frame arrives.
func (c *Client) Next() (Frame, error) {
	return ReadFrame(c.r)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(errCodeShutdown, "")
}
