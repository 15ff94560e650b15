package state

// Table sizes of the mirrored model.
const (
	MaxTallyInputs   = 16
	DownstreamKeyers = 2
	UpstreamKeyers   = 4
	AuxOutputs       = 3
	MediaPlayers     = 2
	AudioChannels    = 13
	MaxMeterChannel  = AudioChannels - 1
	NameLength       = 16
)

// Tally bits per input.
const (
	TallyProgram uint8 = 1 << 0
	TallyPreview uint8 = 1 << 1
)

// TransitionStyle is the configured next-transition type.
type TransitionStyle uint8

// Transition styles.
const (
	StyleMix TransitionStyle = iota
	StyleDip
	StyleWipe
	StyleDVE
	StyleSting
)

// String returns the style name.
func (s TransitionStyle) String() string {
	switch s {
	case StyleMix:
		return "mix"
	case StyleDip:
		return "dip"
	case StyleWipe:
		return "wipe"
	case StyleDVE:
		return "dve"
	case StyleSting:
		return "sting"
	}
	return "unknown"
}

// AudioMode is the mixer state of an audio channel.
type AudioMode uint8

// Audio channel modes.
const (
	AudioOff AudioMode = iota
	AudioOn
	AudioFollowProgram
)

// String returns the mode name.
func (m AudioMode) String() string {
	switch m {
	case AudioOff:
		return "off"
	case AudioOn:
		return "on"
	case AudioFollowProgram:
		return "afv"
	}
	return "unknown"
}

// MediaType is what a media player is loaded with.
type MediaType uint8

// Media player source types.
const (
	MediaClip  MediaType = 1
	MediaStill MediaType = 2
)

// Model is the switcher family derived from the product name.
type Model uint8

// Known switcher models.
const (
	ModelTelevisionStudio Model = 0
	ModelOneME            Model = 1
	ModelTwoME            Model = 2
	ModelUnknown          Model = 255
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case ModelTelevisionStudio:
		return "Television Studio"
	case ModelOneME:
		return "1 M/E"
	case ModelTwoME:
		return "2 M/E"
	}
	return "unknown"
}

// modelFromName classifies by the sixth character of the product name
// ("ATEM Television Studio", "ATEM 1 M/E Production", ...).
func modelFromName(name string) Model {
	if len(name) < 6 {
		return ModelUnknown
	}
	switch name[5] {
	case 'T':
		return ModelTelevisionStudio
	case '1':
		return ModelOneME
	case '2':
		return ModelTwoME
	}
	return ModelUnknown
}

// VideoFormat is the switcher's configured video standard.
type VideoFormat uint8

// Video formats, in protocol order.
const (
	Format525i5994 VideoFormat = iota
	Format625i50
	Format720p50
	Format720p5994
	Format1080i50
	Format1080i5994
)

// MaxVideoFormat is the highest video format the encoder accepts.
const MaxVideoFormat = Format1080i5994

// String returns the format name.
func (f VideoFormat) String() string {
	switch f {
	case Format525i5994:
		return "525i59.94 NTSC"
	case Format625i50:
		return "625i50 PAL"
	case Format720p50:
		return "720p50"
	case Format720p5994:
		return "720p59.94"
	case Format1080i50:
		return "1080i50"
	case Format1080i5994:
		return "1080i59.94"
	}
	return "unknown"
}
