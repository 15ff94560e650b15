package tally

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/atemtally/internal/state"
)

type recorder struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.frames = append(r.frames, f)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestHubBroadcast(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil)
	a, b := &recorder{id: "a"}, &recorder{id: "b"}
	h.Add(a, "test")
	h.Add(b, "test")

	h.Broadcast(Frame{Program: 1})
	h.Broadcast(Frame{Program: 1}) // unchanged, suppressed
	h.Broadcast(Frame{Program: 2})

	if a.count() != 2 || b.count() != 2 {
		t.Errorf("counts = %d, %d; want 2, 2", a.count(), b.count())
	}
	if h.Count() != 2 {
		t.Errorf("Count = %d, want 2", h.Count())
	}
}

func TestHubLateJoinerGetsLastFrame(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil)
	h.Broadcast(Frame{Program: 7})

	r := &recorder{id: "late"}
	h.Add(r, "test")
	if r.count() != 1 || r.frames[0].Program != 7 {
		t.Errorf("late joiner frames = %+v", r.frames)
	}
}

func TestHubRemove(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil)
	r := &recorder{id: "gone"}
	h.Add(r, "test")
	h.Remove("gone")
	h.Broadcast(Frame{Program: 3})

	if r.count() != 0 {
		t.Errorf("removed subscriber got %d frames", r.count())
	}
	h.Remove("nonexistent")
}

func TestHubCountsDrops(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil)
	r := &recorder{id: "slow", full: true}
	h.Add(r, "test")
	h.Broadcast(Frame{Program: 1})
	h.Broadcast(Frame{Program: 2})

	stats := h.Stats()
	if len(stats) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[0].Dropped != 2 || stats[0].Sent != 0 || stats[0].Kind != "test" {
		t.Errorf("stats = %+v", stats[0])
	}
}

func TestHubRun(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil)
	r := &recorder{id: "r"}
	h.Add(r, "test")

	updates := make(chan state.Snapshot, 2)
	store := state.New()
	store.SetProgramInput(5)
	updates <- store.Snapshot()
	close(updates)

	if err := h.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last, ok := h.Last()
	if !ok || last.Program != 5 {
		t.Errorf("Last = %+v, %v", last, ok)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.Run(ctx, make(chan state.Snapshot)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	t.Parallel()
	q := newQueue(1)
	if !q.Send(Frame{}) {
		t.Fatal("first send dropped")
	}
	if q.Send(Frame{}) {
		t.Error("second send should drop")
	}
	if q.ID() == "" {
		t.Error("empty id")
	}
}
