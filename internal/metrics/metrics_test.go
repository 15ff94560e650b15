package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.DatagramReceived()
	m.DatagramSent("ack")
	m.Desync()
	m.Segment("applied")
	m.Handshake("ok")
	m.ContactTimeout()
	m.SessionState(3)
	m.TallySubscribers(2)
}

func TestCounters(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.DatagramReceived()
	m.DatagramReceived()
	m.DatagramSent("command")
	m.Segment("applied")
	m.Segment("applied")
	m.Segment("unknown")
	m.SessionState(3)

	if got := testutil.ToFloat64(m.received); got != 2 {
		t.Errorf("received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sent.WithLabelValues("command")); got != 1 {
		t.Errorf("sent{command} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.segments.WithLabelValues("applied")); got != 2 {
		t.Errorf("segments{applied} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sessionState); got != 3 {
		t.Errorf("session_state = %v, want 3", got)
	}
}

func TestRegistersUnderNamespace(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Desync()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "atem_desync_total" {
			found = true
		}
	}
	if !found {
		t.Error("atem_desync_total not registered")
	}
}
