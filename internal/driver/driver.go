// Package driver owns a switcher session and runs its poll loop. It is the
// single place that touches the session: the loop goroutine and any
// control request made through Do are serialized by one mutex.
package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/atemtally/internal/session"
	"github.com/zsiec/atemtally/internal/state"
)

// Poll interval bounds. The session must be polled at least twice a second.
const (
	DefaultPollInterval  = 100 * time.Millisecond
	MaxPollInterval      = 500 * time.Millisecond
	DefaultRetryInterval = time.Second
)

// Config configures a Driver.
type Config struct {
	PollInterval  time.Duration
	RetryInterval time.Duration // wait between failed connection attempts
	Log           *slog.Logger
	Now           func() time.Time
}

// Driver runs a session's poll loop and publishes state changes.
type Driver struct {
	log  *slog.Logger
	cfg  Config
	mu   sync.Mutex
	sess *session.Session

	lastAttempt time.Time
	attempted   bool

	subMu  sync.Mutex
	subs   map[int]chan state.Snapshot
	nextID int
	last   state.Snapshot
	ready  bool
}

// New creates a Driver for sess. Zero Config fields take defaults.
func New(sess *session.Session, cfg Config) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollInterval > MaxPollInterval {
		cfg.PollInterval = MaxPollInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		log:  log.With("component", "driver"),
		cfg:  cfg,
		sess: sess,
		subs: make(map[int]chan state.Snapshot),
	}
}

// PollInterval returns the effective poll interval after clamping.
func (d *Driver) PollInterval() time.Duration { return d.cfg.PollInterval }

// Run polls until ctx is cancelled, reconnecting as needed. It returns
// ctx.Err() on shutdown.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.log.Info("driver started", "poll_interval", d.cfg.PollInterval)
	d.Step()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("driver stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Step()
		}
	}
}

// Step runs one loop iteration: reconnect if due, poll, check the contact
// timeout, then publish the state if it changed.
func (d *Driver) Step() {
	d.mu.Lock()
	d.maybeConnect()
	if err := d.sess.Poll(); err != nil {
		d.log.Warn("poll failed", "error", err)
	}
	if d.sess.IsConnectionTimedOut() {
		d.log.Warn("connection timed out, reconnecting")
		d.lastAttempt = time.Time{}
		d.attempted = false
	}
	ready := d.sess.State() == session.Ready
	d.mu.Unlock()

	d.publish(ready)
}

func (d *Driver) maybeConnect() {
	if d.sess.State() != session.Disconnected {
		return
	}
	now := d.cfg.Now()
	if d.attempted && now.Sub(d.lastAttempt) < d.cfg.RetryInterval {
		return
	}
	d.attempted = true
	d.lastAttempt = now
	if err := d.sess.LastError(); err != nil {
		d.log.Info("retrying connection", "previous_error", err)
	}
	if err := d.sess.Connect(); err != nil {
		d.log.Warn("connect failed", "error", err)
	}
}

// Do runs fn with exclusive access to the session.
func (d *Driver) Do(fn func(*session.Session) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.sess)
}

// State returns the session lifecycle state.
func (d *Driver) State() session.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess.State()
}

// Snapshot returns the current mirrored state. The store is safe for
// concurrent readers so the session lock is not taken.
func (d *Driver) Snapshot() state.Snapshot {
	return d.sess.Store().Snapshot()
}

// Subscribe returns a channel that receives the latest snapshot whenever it
// changes while the session is Ready. Slow readers only see the newest
// value. Call cancel to unsubscribe.
func (d *Driver) Subscribe() (<-chan state.Snapshot, func()) {
	ch := make(chan state.Snapshot, 1)

	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = ch
	if d.ready {
		ch <- d.last
	}
	d.subMu.Unlock()

	return ch, func() {
		d.subMu.Lock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
		d.subMu.Unlock()
	}
}

func (d *Driver) publish(ready bool) {
	if !ready {
		return
	}
	snap := d.Snapshot()

	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.ready && snap == d.last {
		return
	}
	d.ready = true
	d.last = snap
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
