// Package command builds the tagged payloads the switcher accepts as
// requests. Encoding is pure: an Encoder validates arguments, picks the
// narrow or wide field layout for the firmware it was created for, and
// returns a Command ready for framing. Nothing here touches the network.
package command

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/transport"
	"github.com/zsiec/atemtally/internal/wire"
)

// Command is one encoded request: a 4-character tag and its payload.
type Command struct {
	Tag     wire.Tag
	Payload []byte
}

// String formats the tag and payload bytes for logs.
func (c Command) String() string {
	return fmt.Sprintf("%s % X", c.Tag, c.Payload)
}

// Value ranges accepted by the switcher.
const (
	MaxTransitionPosition = 1000
	MaxFrames             = 250
	MaxHue                = 3600
	MaxSaturation         = 1000
	MaxLightness          = 1000
	ColorGenerators       = 2
	MaxClip               = 2
	MaxStill              = 32
	MaxRunKeyFrame        = 4
	MaxVolume             = 0xFF65
)

var (
	tagProgramInput  = wire.MakeTag("CPgI")
	tagPreviewInput  = wire.MakeTag("CPvI")
	tagCut           = wire.MakeTag("DCut")
	tagAuto          = wire.MakeTag("DAut")
	tagFadeToBlack   = wire.MakeTag("FtbA")
	tagTransPosition = wire.MakeTag("CTPs")
	tagTransPreview  = wire.MakeTag("CTPr")
	tagTransType     = wire.MakeTag("CTTp")
	tagMixTime       = wire.MakeTag("CTMx")
	tagFadeTime      = wire.MakeTag("FtbC")
	tagKeyOn         = wire.MakeTag("CKOn")
	tagDskOn         = wire.MakeTag("CDsL")
	tagDskTie        = wire.MakeTag("CDsT")
	tagDskAuto       = wire.MakeTag("DDsA")
	tagAuxSource     = wire.MakeTag("CAuS")
	tagSettingsSave  = wire.MakeTag("SRsv")
	tagSettingsClear = wire.MakeTag("SRcl")
	tagColor         = wire.MakeTag("CClV")
	tagMediaSelect   = wire.MakeTag("MPSS")
	tagClipStart     = wire.MakeTag("SCPS")
	tagVideoMode     = wire.MakeTag("CVdM")
	tagDVE           = wire.MakeTag("CKDV")
	tagRunKeyFrame   = wire.MakeTag("RFlK")
	tagKeyMask       = wire.MakeTag("CKMs")
	tagDskMask       = wire.MakeTag("CDsM")
	tagKeyFill       = wire.MakeTag("CKeF")
	tagDskFill       = wire.MakeTag("CDsF")
	tagDskKey        = wire.MakeTag("CDsC")
	tagKeyLuma       = wire.MakeTag("CKLm")
	tagDskGain       = wire.MakeTag("CDsG")
	tagAudioInput    = wire.MakeTag("CAMI")
	tagAudioMaster   = wire.MakeTag("CAMM")
	tagAudioLevels   = wire.MakeTag("SALN")
	tagWipeParams    = wire.MakeTag("CTWp")
)

// Encoder builds commands for one firmware encoding. Resolve a fresh
// Encoder per command from the store, since a _ver segment can change the
// encoding mid-session.
type Encoder struct {
	enc   wire.Encoding
	store *state.Store
}

// NewEncoder returns an Encoder for enc. store supplies the current
// keyers-on-next-transition mask and may be nil, in which case the mask
// starts from zero.
func NewEncoder(enc wire.Encoding, store *state.Store) *Encoder {
	return &Encoder{enc: enc, store: store}
}

// Encoding returns the field layout this encoder writes.
func (e *Encoder) Encoding() wire.Encoding { return e.enc }

func cmd(tag wire.Tag, payload ...byte) Command {
	if len(payload) == 0 || len(payload) > transport.MaxCommandPayload {
		panic(fmt.Sprintf("command: %s payload size %d", tag, len(payload)))
	}
	return Command{Tag: tag, Payload: payload}
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (e *Encoder) putSource(field string, b []byte, narrowAt int, src uint16) error {
	if !e.enc.PutSource(b, narrowAt, src) {
		return fmt.Errorf("%w: %s %d needs 16-bit source fields", ErrUnsupported, field, src)
	}
	return nil
}

// ProgramInput selects src on the program bus.
func (e *Encoder) ProgramInput(src uint16) (Command, error) {
	p := make([]byte, 4)
	if err := e.putSource("program source", p, 1, src); err != nil {
		return Command{}, err
	}
	return cmd(tagProgramInput, p...), nil
}

// PreviewInput selects src on the preview bus.
func (e *Encoder) PreviewInput(src uint16) (Command, error) {
	p := make([]byte, 4)
	if err := e.putSource("preview source", p, 1, src); err != nil {
		return Command{}, err
	}
	return cmd(tagPreviewInput, p...), nil
}

// Cut swaps program and preview immediately.
func (e *Encoder) Cut() (Command, error) {
	return cmd(tagCut, 0x00, 0xEF, 0xBF, 0x5F), nil
}

// Auto runs the configured transition.
func (e *Encoder) Auto() (Command, error) {
	return cmd(tagAuto, 0x00, 0x32, 0x16, 0x02), nil
}

// FadeToBlack toggles fade to black.
func (e *Encoder) FadeToBlack() (Command, error) {
	return cmd(tagFadeToBlack, 0x00, 0x02, 0x58, 0x99), nil
}

// TransitionPosition moves the T-bar to pos (1..1000). Follow the last step
// with TransitionPositionDone.
func (e *Encoder) TransitionPosition(pos int) (Command, error) {
	if err := checkRange("transition position", pos, 1, MaxTransitionPosition); err != nil {
		return Command{}, err
	}
	v := uint16(pos * 10)
	return cmd(tagTransPosition, 0x00, 0xE4, byte(v>>8), byte(v)), nil
}

// TransitionPositionDone releases the T-bar after the last position step.
func (e *Encoder) TransitionPositionDone() (Command, error) {
	return cmd(tagTransPosition, 0x00, 0xF6, 0x00, 0x00), nil
}

// TransitionPreview toggles transition preview.
func (e *Encoder) TransitionPreview(on bool) (Command, error) {
	return cmd(tagTransPreview, 0x00, b2u(on), 0x00, 0x00), nil
}

// TransitionStyle selects the style Auto runs.
func (e *Encoder) TransitionStyle(style state.TransitionStyle) (Command, error) {
	if err := checkRange("transition style", int(style), int(state.StyleMix), int(state.StyleSting)); err != nil {
		return Command{}, err
	}
	return cmd(tagTransType, 0x01, 0x00, byte(style), 0x02), nil
}

// MixTime sets the mix transition duration in frames (1..250).
func (e *Encoder) MixTime(frames int) (Command, error) {
	if err := checkRange("mix frames", frames, 1, MaxFrames); err != nil {
		return Command{}, err
	}
	return cmd(tagMixTime, 0x00, byte(frames), 0x00, 0x00), nil
}

// FadeToBlackTime sets the fade duration in frames (1..250).
func (e *Encoder) FadeToBlackTime(frames int) (Command, error) {
	if err := checkRange("fade frames", frames, 1, MaxFrames); err != nil {
		return Command{}, err
	}
	return cmd(tagFadeTime, 0x01, 0x00, byte(frames), 0x02), nil
}

// KeyerOnNextTransition includes or excludes a layer from the next
// transition. Layer 0 is the background, 1..4 the upstream keyers. The
// other layers keep the state last reported by the switcher.
func (e *Encoder) KeyerOnNextTransition(layer int, on bool) (Command, error) {
	if err := checkRange("next transition layer", layer, 0, state.UpstreamKeyers); err != nil {
		return Command{}, err
	}
	var mask uint8
	if e.store != nil {
		mask = e.store.KeyersOnNextTransition()
	}
	if on {
		mask |= 1 << layer
	} else {
		mask &^= 1 << layer
	}
	return cmd(tagTransType, 0x02, 0x00, 0x6A, mask&0x1F), nil
}

// WipeReverse sets the wipe direction.
func (e *Encoder) WipeReverse(reverse bool) (Command, error) {
	p := make([]byte, 20)
	p[0] = 0x01
	p[18] = b2u(reverse)
	return cmd(tagWipeParams, p...), nil
}

// UpstreamKeyerOn puts upstream keyer 1..4 on or off air.
func (e *Encoder) UpstreamKeyerOn(keyer int, on bool) (Command, error) {
	if err := checkRange("upstream keyer", keyer, 1, state.UpstreamKeyers); err != nil {
		return Command{}, err
	}
	return cmd(tagKeyOn, 0x00, byte(keyer-1), b2u(on), 0x90), nil
}

// DownstreamKeyerOn puts downstream keyer 1..2 on or off air.
func (e *Encoder) DownstreamKeyerOn(keyer int, on bool) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	return cmd(tagDskOn, byte(keyer-1), b2u(on), 0xFF, 0xFF), nil
}

// DownstreamKeyerTie ties downstream keyer 1..2 to the next transition.
func (e *Encoder) DownstreamKeyerTie(keyer int, tie bool) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	return cmd(tagDskTie, byte(keyer-1), b2u(tie), 0xFF, 0xFF), nil
}

// DownstreamKeyerAuto runs an auto transition of a downstream keyer.
func (e *Encoder) DownstreamKeyerAuto(keyer int) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	return cmd(tagDskAuto, byte(keyer-1), 0x32, 0x16, 0x02), nil
}

// UpstreamKeyerFill sets the fill source of upstream keyer 1..4.
func (e *Encoder) UpstreamKeyerFill(keyer int, src uint16) (Command, error) {
	if err := checkRange("upstream keyer", keyer, 1, state.UpstreamKeyers); err != nil {
		return Command{}, err
	}
	p := []byte{0x00, byte(keyer - 1), 0x00, 0x00}
	if err := e.putSource("fill source", p, 2, src); err != nil {
		return Command{}, err
	}
	return cmd(tagKeyFill, p...), nil
}

// DownstreamKeyerFill sets the fill source of downstream keyer 1..2.
func (e *Encoder) DownstreamKeyerFill(keyer int, src uint16) (Command, error) {
	return e.dskSource(tagDskFill, "fill source", keyer, src)
}

// DownstreamKeyerKey sets the key source of downstream keyer 1..2.
func (e *Encoder) DownstreamKeyerKey(keyer int, src uint16) (Command, error) {
	return e.dskSource(tagDskKey, "key source", keyer, src)
}

func (e *Encoder) dskSource(tag wire.Tag, field string, keyer int, src uint16) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	p := []byte{byte(keyer - 1), 0x00, 0x00, 0x00}
	if err := e.putSource(field, p, 1, src); err != nil {
		return Command{}, err
	}
	return cmd(tag, p...), nil
}

// Blending holds luma key parameters.
type Blending struct {
	PreMultiplied bool
	Clip          uint16
	Gain          uint16
	Invert        bool
}

// UpstreamKeyerBlending sets the luma key parameters of upstream keyer 1..4.
func (e *Encoder) UpstreamKeyerBlending(keyer int, b Blending) (Command, error) {
	if err := checkRange("upstream keyer", keyer, 1, state.UpstreamKeyers); err != nil {
		return Command{}, err
	}
	p := make([]byte, 12)
	p[0] = 0x02
	p[1] = byte(keyer - 1)
	p[3] = b2u(b.PreMultiplied)
	binary.BigEndian.PutUint16(p[4:6], b.Clip)
	binary.BigEndian.PutUint16(p[6:8], b.Gain)
	p[8] = b2u(b.Invert)
	return cmd(tagKeyLuma, p...), nil
}

// DownstreamKeyerBlending sets the key parameters of downstream keyer 1..2.
func (e *Encoder) DownstreamKeyerBlending(keyer int, b Blending) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	p := make([]byte, 12)
	p[0] = 0x02
	p[1] = byte(keyer - 1)
	p[2] = b2u(b.PreMultiplied)
	binary.BigEndian.PutUint16(p[4:6], b.Clip)
	binary.BigEndian.PutUint16(p[6:8], b.Gain)
	p[8] = b2u(b.Invert)
	return cmd(tagDskGain, p...), nil
}

// Mask is a rectangular key mask. Every edge is enabled.
type Mask struct {
	Top, Bottom, Left, Right uint16
}

// maskEdges enables the top, bottom, left and right edges.
const maskEdges = 0x1E

func putMask(p []byte, m Mask) {
	binary.BigEndian.PutUint16(p[0:2], m.Top)
	binary.BigEndian.PutUint16(p[2:4], m.Bottom)
	binary.BigEndian.PutUint16(p[4:6], m.Left)
	binary.BigEndian.PutUint16(p[6:8], m.Right)
}

// KeyerMask sets the upstream keyer mask.
func (e *Encoder) KeyerMask(m Mask) (Command, error) {
	p := make([]byte, 12)
	p[0] = maskEdges
	putMask(p[4:], m)
	return cmd(tagKeyMask, p...), nil
}

// DownstreamKeyerMask sets the mask of downstream keyer 1..2.
func (e *Encoder) DownstreamKeyerMask(keyer int, m Mask) (Command, error) {
	if err := checkRange("downstream keyer", keyer, 1, state.DownstreamKeyers); err != nil {
		return Command{}, err
	}
	p := make([]byte, 12)
	p[0] = maskEdges
	p[1] = byte(keyer - 1)
	putMask(p[4:], m)
	return cmd(tagDskMask, p...), nil
}

// AuxSource routes src to aux output 1..3. The wide form is a different,
// 8-byte layout.
func (e *Encoder) AuxSource(aux int, src uint16) (Command, error) {
	if err := checkRange("aux output", aux, 1, state.AuxOutputs); err != nil {
		return Command{}, err
	}
	if e.enc.IsWide() {
		p := make([]byte, 8)
		p[0] = 0x01
		p[1] = byte(aux - 1)
		binary.BigEndian.PutUint16(p[2:4], src)
		return cmd(tagAuxSource, p...), nil
	}
	if src > 0xFF {
		return Command{}, fmt.Errorf("%w: aux source %d needs 16-bit source fields", ErrUnsupported, src)
	}
	return cmd(tagAuxSource, byte(aux-1), byte(src), 0x00, 0x00), nil
}

// SaveSettings persists the current state as the startup state.
func (e *Encoder) SaveSettings() (Command, error) {
	return cmd(tagSettingsSave, 0, 0, 0, 0), nil
}

// ClearSettings clears the persisted startup state.
func (e *Encoder) ClearSettings() (Command, error) {
	return cmd(tagSettingsClear, 0, 0, 0, 0), nil
}

// ColorGenerator sets color generator 1..2. Hue is in tenths of a degree,
// saturation and lightness in tenths of a percent.
func (e *Encoder) ColorGenerator(gen int, hue, sat, light int) (Command, error) {
	if err := checkRange("color generator", gen, 1, ColorGenerators); err != nil {
		return Command{}, err
	}
	if err := checkRange("hue", hue, 0, MaxHue); err != nil {
		return Command{}, err
	}
	if err := checkRange("saturation", sat, 0, MaxSaturation); err != nil {
		return Command{}, err
	}
	if err := checkRange("lightness", light, 0, MaxLightness); err != nil {
		return Command{}, err
	}
	p := make([]byte, 8)
	p[0] = 0x07
	p[1] = byte(gen - 1)
	binary.BigEndian.PutUint16(p[2:4], uint16(hue))
	binary.BigEndian.PutUint16(p[4:6], uint16(sat))
	binary.BigEndian.PutUint16(p[6:8], uint16(light))
	return cmd(tagColor, p...), nil
}

// MediaPlayerSource loads a clip (1..2) or still (1..32) into a media
// player. The switcher only switches between stills and clips when the
// companion command follows immediately, so both are returned and must be
// sent in order.
func (e *Encoder) MediaPlayerSource(player int, clip bool, index int) ([2]Command, error) {
	if err := checkRange("media player", player, 1, state.MediaPlayers); err != nil {
		return [2]Command{}, err
	}
	sel := make([]byte, 12)
	sel[1] = byte(player - 1)
	if clip {
		if err := checkRange("clip", index, 1, MaxClip); err != nil {
			return [2]Command{}, err
		}
		sel[0] = 0x04
		sel[4] = byte(index - 1)
	} else {
		if err := checkRange("still", index, 1, MaxStill); err != nil {
			return [2]Command{}, err
		}
		sel[0] = 0x02
		sel[3] = byte(index - 1)
	}
	sel[9] = 0x10

	kind, marker := byte(0x01), byte(0xD5)
	if clip {
		kind, marker = 0x02, 0x96
	}
	companion := cmd(tagMediaSelect, 0x01, byte(player-1), kind, 0xBF, marker, 0xB6, 0x04, 0x00)
	return [2]Command{cmd(tagMediaSelect, sel...), companion}, nil
}

// MediaPlayerStart starts clip playback on a media player.
func (e *Encoder) MediaPlayerStart(player int) (Command, error) {
	if err := checkRange("media player", player, 1, state.MediaPlayers); err != nil {
		return Command{}, err
	}
	return cmd(tagClipStart, 0x01, byte(player-1), 0x01, 0xBF, 0x21, 0xA9, 0x94, 0xFA), nil
}

// VideoFormat changes the switcher video standard.
func (e *Encoder) VideoFormat(f state.VideoFormat) (Command, error) {
	if err := checkRange("video format", int(f), 0, int(state.MaxVideoFormat)); err != nil {
		return Command{}, err
	}
	return cmd(tagVideoMode, byte(f), 0xEB, 0xFF, 0xBF), nil
}

// AudioChannelMode switches a mixer channel off, on, or audio-follow-video.
func (e *Encoder) AudioChannelMode(channel uint16, mode state.AudioMode) (Command, error) {
	if err := checkRange("audio mode", int(mode), int(state.AudioOff), int(state.AudioFollowProgram)); err != nil {
		return Command{}, err
	}
	p := make([]byte, 12)
	p[0] = 0x01
	if e.enc.IsWide() {
		binary.BigEndian.PutUint16(p[2:4], channel)
		p[4] = byte(mode)
		return cmd(tagAudioInput, p...), nil
	}
	if channel > 0xFF {
		return Command{}, fmt.Errorf("%w: audio channel %d needs 16-bit source fields", ErrUnsupported, channel)
	}
	p[1] = byte(channel)
	p[2] = byte(mode)
	p[3] = 0x03
	return cmd(tagAudioInput, p...), nil
}

// AudioChannelVolume sets a channel's fader. Volumes above MaxVolume
// (+6 dB) are clamped.
func (e *Encoder) AudioChannelVolume(channel, volume uint16) (Command, error) {
	volume = min(volume, MaxVolume)
	if e.enc.IsWide() {
		p := make([]byte, 12)
		p[0] = 0x02
		binary.BigEndian.PutUint16(p[2:4], channel)
		binary.BigEndian.PutUint16(p[6:8], volume)
		return cmd(tagAudioInput, p...), nil
	}
	if channel > 0xFF {
		return Command{}, fmt.Errorf("%w: audio channel %d needs 16-bit source fields", ErrUnsupported, channel)
	}
	p := make([]byte, 8)
	p[0] = 0x02
	p[1] = byte(channel)
	binary.BigEndian.PutUint16(p[4:6], volume)
	return cmd(tagAudioInput, p...), nil
}

// MasterVolume sets the master fader. Volumes above MaxVolume are clamped.
func (e *Encoder) MasterVolume(volume uint16) (Command, error) {
	volume = min(volume, MaxVolume)
	return cmd(tagAudioMaster, 0x01, 0x00, byte(volume>>8), byte(volume), 0, 0, 0, 0), nil
}

// AudioLevelStreaming asks the switcher to start or stop sending AMLv.
func (e *Encoder) AudioLevelStreaming(on bool) (Command, error) {
	return cmd(tagAudioLevels, b2u(on), 0, 0, 0), nil
}
