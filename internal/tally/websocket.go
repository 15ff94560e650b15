package tally

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// WebSocketSubscriber streams frames as JSON text messages to a browser.
type WebSocketSubscriber struct {
	*queue
	conn *websocket.Conn
	log  *slog.Logger
}

// NewWebSocketSubscriber wraps an upgraded connection. log may be nil.
func NewWebSocketSubscriber(conn *websocket.Conn, log *slog.Logger) *WebSocketSubscriber {
	if log == nil {
		log = slog.Default()
	}
	q := newQueue(subscriberQueue)
	return &WebSocketSubscriber{
		queue: q,
		conn:  conn,
		log:   log.With("component", "tally-ws", "id", q.ID()),
	}
}

// Run writes queued frames until the peer goes away or ctx is cancelled.
// It closes the connection before returning.
func (w *WebSocketSubscriber) Run(ctx context.Context) error {
	defer w.conn.Close()

	gone := make(chan struct{})
	go w.readLoop(gone)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return nil
		case <-gone:
			return nil
		case f := <-w.ch:
			w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteJSON(f); err != nil {
				w.log.Debug("write failed", "error", err)
				return err
			}
		case <-ping.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		}
	}
}

// readLoop discards client messages and signals when the peer disconnects.
func (w *WebSocketSubscriber) readLoop(gone chan<- struct{}) {
	defer close(gone)
	w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}
