// Package tally distributes switcher tally to indicators and dashboards.
// A Hub fans frames out to subscribers; a QUIC Server gives each indicator
// a unidirectional stream of frames and WebSocketSubscriber serves
// browsers.
package tally

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zsiec/atemtally/internal/metrics"
	"github.com/zsiec/atemtally/internal/state"
)

// Subscriber receives tally frames. Send must not block; it returns false
// when the frame was dropped.
type Subscriber interface {
	ID() string
	Send(f Frame) bool
}

// SubscriberStats reports delivery counters for one subscriber.
type SubscriberStats struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Sent    int64  `json:"sent"`
	Dropped int64  `json:"dropped"`
}

type entry struct {
	sub     Subscriber
	kind    string
	sent    atomic.Int64
	dropped atomic.Int64
}

// Hub is the fan-out point for tally frames. Late joiners receive the last
// frame immediately.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	subs    map[string]*entry
	last    Frame
	hasLast bool
}

// NewHub creates an empty Hub. log and m may be nil.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log.With("component", "tally-hub"),
		metrics: m,
		subs:    make(map[string]*entry),
	}
}

// NewID returns a fresh subscriber ID.
func NewID() string {
	return uuid.NewString()
}

// Add registers sub and replays the last frame to it. kind labels the
// subscriber in stats ("quic", "websocket").
func (h *Hub) Add(sub Subscriber, kind string) {
	e := &entry{sub: sub, kind: kind}

	h.mu.Lock()
	if h.hasLast {
		h.deliver(e, h.last)
	}
	h.subs[sub.ID()] = e
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.TallySubscribers(n)
	h.log.Info("subscriber added", "id", sub.ID(), "kind", kind, "subscribers", n)
}

// Remove unregisters a subscriber by ID.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.TallySubscribers(n)
	h.log.Info("subscriber removed", "id", id, "subscribers", n)
}

// Broadcast sends f to every subscriber unless it equals the last frame.
func (h *Hub) Broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasLast && h.last.Equal(f) {
		return
	}
	h.last = f
	h.hasLast = true
	for _, e := range h.subs {
		h.deliver(e, f)
	}
}

func (h *Hub) deliver(e *entry, f Frame) {
	if e.sub.Send(f) {
		e.sent.Add(1)
		return
	}
	if e.dropped.Add(1) == 1 {
		h.log.Warn("subscriber falling behind, dropping frames", "id", e.sub.ID())
	}
}

// Last returns the most recent frame, if any.
func (h *Hub) Last() (Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.hasLast
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns delivery counters for every subscriber.
func (h *Hub) Stats() []SubscriberStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SubscriberStats, 0, len(h.subs))
	for id, e := range h.subs {
		out = append(out, SubscriberStats{
			ID:      id,
			Kind:    e.kind,
			Sent:    e.sent.Load(),
			Dropped: e.dropped.Load(),
		})
	}
	return out
}

// Run broadcasts a frame for every snapshot received until ctx is done or
// updates is closed.
func (h *Hub) Run(ctx context.Context, updates <-chan state.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			h.Broadcast(FrameFromSnapshot(snap))
		}
	}
}

// queue is a bounded mailbox used by stream-backed subscribers.
type queue struct {
	id string
	ch chan Frame
}

func newQueue(size int) *queue {
	return &queue{id: NewID(), ch: make(chan Frame, size)}
}

// ID returns the subscriber ID.
func (q *queue) ID() string { return q.id }

// Send queues f and reports false when the subscriber is full.
func (q *queue) Send(f Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		return false
	}
}
