// Package metrics exposes protocol counters for the switcher connection.
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "atem"

// Metrics holds the collectors for one switcher connection.
type Metrics struct {
	received        prometheus.Counter
	sent            *prometheus.CounterVec
	desync          prometheus.Counter
	segments        *prometheus.CounterVec
	handshakes      *prometheus.CounterVec
	contactTimeouts prometheus.Counter
	sessionState    prometheus.Gauge
	tallySubs       prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration against the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		received: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams read from the switcher.",
		}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Datagrams sent to the switcher, by kind.",
		}, []string{"kind"}),
		desync: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "desync_total",
			Help:      "Datagrams dropped because their framing could not be trusted.",
		}),
		segments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Parsed segments, by outcome.",
		}, []string{"outcome"}),
		handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Handshake attempts, by result.",
		}, []string{"result"}),
		contactTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_timeouts_total",
			Help:      "Sessions dropped after the contact timeout.",
		}),
		sessionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 disconnected, 1 connecting, 2 initializing, 3 ready).",
		}),
		tallySubs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tally_subscribers",
			Help:      "Connected tally subscribers.",
		}),
	}
}

// DatagramReceived counts an inbound datagram.
func (m *Metrics) DatagramReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

// DatagramSent counts an outbound datagram: hello, hello_ack, ack or command.
func (m *Metrics) DatagramSent(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

// Desync counts a datagram dropped for broken segment framing.
func (m *Metrics) Desync() {
	if m == nil {
		return
	}
	m.desync.Inc()
}

// Segment counts one parsed segment by outcome.
func (m *Metrics) Segment(outcome string) {
	if m == nil {
		return
	}
	m.segments.WithLabelValues(outcome).Inc()
}

// Handshake counts a finished handshake attempt: ok or timeout.
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

// ContactTimeout counts a session dropped for switcher silence.
func (m *Metrics) ContactTimeout() {
	if m == nil {
		return
	}
	m.contactTimeouts.Inc()
}

// SessionState records the current session lifecycle state.
func (m *Metrics) SessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

// TallySubscribers records the number of connected tally subscribers.
func (m *Metrics) TallySubscribers(n int) {
	if m == nil {
		return
	}
	m.tallySubs.Set(float64(n))
}
