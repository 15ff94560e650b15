package parser

import "github.com/zsiec/atemtally/internal/wire"

// Kind identifies a recognized segment tag. KindUnknown covers every tag not
// in the dispatch table.
type Kind uint8

// Recognized segment kinds.
const (
	KindUnknown Kind = iota
	KindProgramInput
	KindPreviewInput
	KindTally
	KindTransitionPreview
	KindTransitionPosition
	KindTransitionStyle
	KindFadeToBlackState
	KindFadeToBlackTime
	KindMixTime
	KindDownstreamKeyerState
	KindDownstreamKeyerTie
	KindUpstreamKeyerOn
	KindMediaPlayer
	KindAuxSource
	KindVersion
	KindName
	KindAudioChannel
	KindAudioLevels
	KindVideoFormat
	KindColorGenerator
	KindAudioMonitorTally
	numKinds
)

var kindNames = [numKinds]string{
	KindUnknown:              "unknown",
	KindProgramInput:         "PrgI",
	KindPreviewInput:         "PrvI",
	KindTally:                "TlIn",
	KindTransitionPreview:    "TrPr",
	KindTransitionPosition:   "TrPs",
	KindTransitionStyle:      "TrSS",
	KindFadeToBlackState:     "FtbS",
	KindFadeToBlackTime:      "FtbP",
	KindMixTime:              "TMxP",
	KindDownstreamKeyerState: "DskS",
	KindDownstreamKeyerTie:   "DskP",
	KindUpstreamKeyerOn:      "KeOn",
	KindMediaPlayer:          "MPCE",
	KindAuxSource:            "AuxS",
	KindVersion:              "_ver",
	KindName:                 "_pin",
	KindAudioChannel:         "AMIP",
	KindAudioLevels:          "AMLv",
	KindVideoFormat:          "VidM",
	KindColorGenerator:       "ColV",
	KindAudioMonitorTally:    "AMTl",
}

// kinds maps wire tags to their kind; built from kindNames so the two can
// never disagree.
var kinds = func() map[wire.Tag]Kind {
	m := make(map[wire.Tag]Kind, numKinds-1)
	for k := KindUnknown + 1; k < numKinds; k++ {
		m[wire.MakeTag(kindNames[k])] = k
	}
	return m
}()

// KindOf resolves a tag through the dispatch table.
func KindOf(tag wire.Tag) Kind {
	return kinds[tag]
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	if k >= numKinds {
		return "invalid"
	}
	return kindNames[k]
}

// Supported reports whether segments of this kind mutate the store.
// ColV and AMTl are recognized but not modeled.
func (k Kind) Supported() bool {
	switch k {
	case KindUnknown, KindColorGenerator, KindAudioMonitorTally:
		return false
	}
	return k < numKinds
}

// Outcome is what happened to one segment.
type Outcome uint8

// Segment outcomes.
const (
	OutcomeApplied     Outcome = iota // state mutated
	OutcomeIgnored                    // recognized but index out of range or payload short
	OutcomeUnsupported                // recognized, intentionally not modeled
	OutcomeUnknown                    // tag not in the dispatch table
)

// String returns the outcome label used in metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeUnknown:
		return "unknown"
	}
	return "invalid"
}
