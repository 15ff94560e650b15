// Package parser turns the body of an inbound ATEM datagram into state
// mutations. A datagram body is a sequence of segments, each an 8-byte
// sub-header (length, reserved, 4-character tag) followed by a payload.
// Payloads are read through one bounded [wire.Scratch], so a Parser must
// not be reentered while a parse is in progress.
package parser

import (
	"encoding/binary"
	"log/slog"

	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/transport"
	"github.com/zsiec/atemtally/internal/wire"
)

// Report summarizes one datagram parse.
type Report struct {
	Segments    int
	Applied     int
	Ignored     int
	Unsupported int
	Unknown     int

	// UnsupportedTags lists recognized-but-unmodeled tags seen (ColV, AMTl).
	UnsupportedTags []wire.Tag
}

func (r *Report) record(tag wire.Tag, o Outcome) {
	r.Segments++
	switch o {
	case OutcomeApplied:
		r.Applied++
	case OutcomeIgnored:
		r.Ignored++
	case OutcomeUnsupported:
		r.Unsupported++
		r.UnsupportedTags = append(r.UnsupportedTags, tag)
	case OutcomeUnknown:
		r.Unknown++
	}
}

// Observer is called once per segment after dispatch.
type Observer func(tag wire.Tag, kind Kind, outcome Outcome)

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for verbose tracing.
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log.With("component", "parser")
		}
	}
}

// WithVerbose enables debug-level tracing of segment and tally events.
func WithVerbose(v bool) Option {
	return func(p *Parser) { p.verbose = v }
}

// WithObserver registers a per-segment callback.
func WithObserver(fn Observer) Option {
	return func(p *Parser) { p.observer = fn }
}

// Parser dispatches datagram segments to store mutations.
type Parser struct {
	store    *state.Store
	scratch  wire.Scratch
	log      *slog.Logger
	verbose  bool
	observer Observer
}

// New creates a Parser that writes into store.
func New(store *state.Store, opts ...Option) *Parser {
	p := &Parser{
		store: store,
		log:   slog.Default().With("component", "parser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse walks every segment of datagram, whose header has already been
// validated. A malformed sub-header aborts the walk with a
// *transport.DesyncError; segments before it stay applied.
func (p *Parser) Parse(datagram []byte) (Report, error) {
	var rep Report
	total := len(datagram)
	idx := transport.HeaderSize

	for idx < total {
		if idx+transport.SegmentHeaderSize > total {
			return rep, p.desync(idx, transport.SegmentHeaderSize, total-idx)
		}
		sub := datagram[idx : idx+transport.SegmentHeaderSize]
		segLen := int(binary.BigEndian.Uint16(sub[0:2]))
		var tag wire.Tag
		copy(tag[:], sub[4:8])

		if segLen <= transport.SegmentHeaderSize {
			return rep, p.desync(idx, segLen, total-idx)
		}
		if idx+segLen > total {
			return rep, p.desync(idx, segLen, total-idx)
		}

		kind := KindOf(tag)
		p.scratch.Reset(datagram[idx+transport.SegmentHeaderSize : idx+segLen])
		outcome := p.dispatch(kind)
		p.scratch.Drain()

		rep.record(tag, outcome)
		if p.verbose {
			p.log.Debug("segment", "tag", tag.String(), "len", segLen, "outcome", outcome.String())
		}
		if p.observer != nil {
			p.observer(tag, kind, outcome)
		}
		idx += segLen
	}
	return rep, nil
}

func (p *Parser) desync(offset, declared, actual int) error {
	if p.verbose {
		p.log.Debug("segment desync, dropping rest of datagram",
			"offset", offset, "declared", declared, "available", actual)
	}
	return &transport.DesyncError{
		Offset:   offset,
		Declared: declared,
		Actual:   actual,
		Err:      transport.ErrBadSegment,
	}
}

// dispatch applies one segment. The wire encoding is resolved per segment
// because a _ver segment earlier in the same datagram can change it.
func (p *Parser) dispatch(kind Kind) Outcome {
	switch kind {
	case KindUnknown:
		return OutcomeUnknown
	case KindColorGenerator, KindAudioMonitorTally:
		return OutcomeUnsupported
	case KindAudioLevels:
		return p.audioLevels()
	}

	s := &p.scratch
	s.Fill(wire.ScratchSize)
	enc := p.store.Encoding()

	switch kind {
	case KindProgramInput:
		src := enc.Source(s, 1)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetProgramInput(src)
		if p.verbose {
			p.log.Debug("program bus", "source", src)
		}

	case KindPreviewInput:
		src := enc.Source(s, 1)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetPreviewInput(src)
		if p.verbose {
			p.log.Debug("preview bus", "source", src)
		}

	case KindTally:
		count := int(s.Byte(1))
		if s.Overflow() {
			return OutcomeIgnored
		}
		count = min(count, state.MaxTallyInputs)
		if s.Len()-2 < count {
			return OutcomeIgnored
		}
		p.store.SetTally(s.Bytes(2, count))
		if p.verbose {
			p.log.Debug("tally updated", "inputs", count, "bits", s.Bytes(2, count))
		}

	case KindTransitionPreview:
		on := s.Byte(1) > 0
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetTransitionPreview(on)

	case KindTransitionPosition:
		frames := s.Byte(2)
		pos := s.Uint16(4)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetTransitionPosition(frames, pos)

	case KindTransitionStyle:
		style := state.TransitionStyle(s.Byte(1))
		next := s.Byte(2)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetTransitionStyle(style, next)

	case KindFadeToBlackState:
		active := s.Byte(2) != 0
		frames := s.Byte(3)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetFadeToBlackState(active, frames)

	case KindFadeToBlackTime:
		frames := s.Byte(1)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetFadeToBlackTime(frames)

	case KindMixTime:
		frames := s.Byte(1)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetMixTime(frames)

	case KindDownstreamKeyerState:
		idx, on := int(s.Byte(0)), s.Byte(1) > 0
		if s.Overflow() || !p.store.SetDownstreamKeyer(idx, on) {
			return OutcomeIgnored
		}

	case KindDownstreamKeyerTie:
		idx, tie := int(s.Byte(0)), s.Byte(1) > 0
		if s.Overflow() || !p.store.SetDownstreamKeyTie(idx, tie) {
			return OutcomeIgnored
		}

	case KindUpstreamKeyerOn:
		idx, on := int(s.Byte(1)), s.Byte(2) > 0
		if s.Overflow() || !p.store.SetUpstreamKeyer(idx, on) {
			return OutcomeIgnored
		}

	case KindMediaPlayer:
		idx := int(s.Byte(0))
		typ, still, clip := state.MediaType(s.Byte(1)), s.Byte(2), s.Byte(3)
		if s.Overflow() || !p.store.SetMediaPlayer(idx, typ, still, clip) {
			return OutcomeIgnored
		}

	case KindAuxSource:
		idx := int(s.Byte(0))
		src := enc.Source(s, 1)
		if s.Overflow() || !p.store.SetAuxSource(idx, src) {
			return OutcomeIgnored
		}

	case KindVersion:
		v := wire.Version{Major: s.Byte(1), Minor: s.Byte(3)}
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetVersion(v)
		if p.verbose {
			p.log.Debug("firmware version", "version", v.String(), "encoding", wire.EncodingFor(v).String())
		}

	case KindName:
		p.store.SetName(s.Bytes(0, state.NameLength))

	case KindAudioChannel:
		ch := int(s.Byte(1))
		mode := state.AudioMode(s.Byte(8))
		if s.Overflow() || !p.store.SetAudioChannelMode(ch, mode) {
			return OutcomeIgnored
		}

	case KindVideoFormat:
		f := state.VideoFormat(s.Byte(0))
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetVideoFormat(f)
	}
	return OutcomeApplied
}

// AMLv layout: a 4-byte mini header (channel count at [1]), a 32-byte block
// with master and monitor levels, the input source-number block (2 bytes per
// channel, padded to a multiple of 4) and one 16-byte level block per input.
// Only the block for the selected meter channel is decoded.
const (
	levelsHeaderSize = 4
	levelsMainSize   = 32
	levelsBlockSize  = 16
)

func (p *Parser) audioLevels() Outcome {
	s := &p.scratch
	s.Fill(levelsHeaderSize)
	count := int(s.Byte(1))
	if s.Overflow() {
		return OutcomeIgnored
	}

	ch := int(p.store.MeterChannel())
	s.Fill(levelsMainSize)
	if ch <= 1 {
		off := ch << 4
		left, right := s.Uint16(off+1), s.Uint16(off+5)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetAudioLevels(left, right)
		return OutcomeApplied
	}

	sources := count << 1
	if count&1 == 1 {
		sources = (count + 1) << 1
	}
	for sources > 0 {
		n := min(sources, wire.ScratchSize)
		s.Fill(n)
		sources -= n
	}

	for j := 0; j < count; j++ {
		s.Fill(levelsBlockSize)
		if ch != j+3 {
			continue
		}
		left, right := s.Uint16(1), s.Uint16(5)
		if s.Overflow() {
			return OutcomeIgnored
		}
		p.store.SetAudioLevels(left, right)
		return OutcomeApplied
	}
	return OutcomeIgnored
}
