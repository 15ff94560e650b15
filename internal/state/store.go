// Package state is the mirrored model of switcher state. The frame parser
// is its only writer; everything else reads through accessors or a
// Snapshot. Values are the last ones the switcher reported and survive
// reconnects: a fresh handshake never clears the store.
package state

import (
	"bytes"
	"sync"

	"github.com/zsiec/atemtally/internal/wire"
)

// Store holds the mirrored switcher state. Mutators take a write lock so
// that API and tally goroutines can read while the poll goroutine parses.
type Store struct {
	mu sync.RWMutex

	program uint16
	preview uint16

	tally      [MaxTallyInputs]uint8
	tallyCount int

	style        TransitionStyle
	nextKeyers   uint8
	position     uint16
	transFrames  uint8
	transPreview bool

	ftbActive bool
	ftbFrames uint8
	ftbTime   uint8
	mixTime   uint8

	dskOn  [DownstreamKeyers]bool
	dskTie [DownstreamKeyers]bool
	uskOn  [UpstreamKeyers]bool

	aux [AuxOutputs]uint16

	mpType  [MediaPlayers]MediaType
	mpStill [MediaPlayers]uint8
	mpClip  [MediaPlayers]uint8

	audioMode    [AudioChannels]AudioMode
	meterLeft    uint16
	meterRight   uint16
	meterChannel uint8

	version     wire.Version
	name        string
	model       Model
	videoFormat VideoFormat
}

// New returns an empty store.
func New() *Store {
	return &Store{model: ModelUnknown}
}

// Encoding resolves the wire encoding for the currently known firmware.
func (s *Store) Encoding() wire.Encoding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wire.EncodingFor(s.version)
}

// SetProgramInput stores the program bus source from a PrgI segment.
func (s *Store) SetProgramInput(src uint16) {
	s.mu.Lock()
	s.program = src
	s.mu.Unlock()
}

// SetPreviewInput stores the preview bus source from a PrvI segment.
func (s *Store) SetPreviewInput(src uint16) {
	s.mu.Lock()
	s.preview = src
	s.mu.Unlock()
}

// SetTally replaces the tally table. Entries beyond MaxTallyInputs are
// dropped.
func (s *Store) SetTally(bits []uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(len(bits), MaxTallyInputs)
	copy(s.tally[:n], bits[:n])
	clear(s.tally[n:])
	s.tallyCount = n
}

// SetTransitionPreview stores the transition preview flag from TrPr.
func (s *Store) SetTransitionPreview(on bool) {
	s.mu.Lock()
	s.transPreview = on
	s.mu.Unlock()
}

// SetTransitionPosition stores T-bar progress from a TrPs segment.
func (s *Store) SetTransitionPosition(framesRemaining uint8, position uint16) {
	s.mu.Lock()
	s.transFrames = framesRemaining
	s.position = position
	s.mu.Unlock()
}

// SetTransitionStyle stores the style and the 5-bit on-next-transition mask
// (bit 0 background, bits 1-4 upstream keyers 1-4).
func (s *Store) SetTransitionStyle(style TransitionStyle, nextKeyers uint8) {
	s.mu.Lock()
	s.style = style
	s.nextKeyers = nextKeyers & 0x1F
	s.mu.Unlock()
}

// SetFadeToBlackState stores fade to black progress from FtbS.
func (s *Store) SetFadeToBlackState(active bool, framesRemaining uint8) {
	s.mu.Lock()
	s.ftbActive = active
	s.ftbFrames = framesRemaining
	s.mu.Unlock()
}

// SetFadeToBlackTime stores the fade to black rate from FtbP.
func (s *Store) SetFadeToBlackTime(frames uint8) {
	s.mu.Lock()
	s.ftbTime = frames
	s.mu.Unlock()
}

// SetMixTime stores the mix rate from TMxP.
func (s *Store) SetMixTime(frames uint8) {
	s.mu.Lock()
	s.mixTime = frames
	s.mu.Unlock()
}

// SetDownstreamKeyer stores DSK on-air state for zero-based index idx.
// It returns false and leaves the store untouched for an invalid index.
func (s *Store) SetDownstreamKeyer(idx int, on bool) bool {
	if idx < 0 || idx >= DownstreamKeyers {
		return false
	}
	s.mu.Lock()
	s.dskOn[idx] = on
	s.mu.Unlock()
	return true
}

// SetDownstreamKeyTie stores the DSK tie flag for zero-based index idx.
func (s *Store) SetDownstreamKeyTie(idx int, tie bool) bool {
	if idx < 0 || idx >= DownstreamKeyers {
		return false
	}
	s.mu.Lock()
	s.dskTie[idx] = tie
	s.mu.Unlock()
	return true
}

// SetUpstreamKeyer stores on-air state for zero-based upstream keyer idx.
func (s *Store) SetUpstreamKeyer(idx int, on bool) bool {
	if idx < 0 || idx >= UpstreamKeyers {
		return false
	}
	s.mu.Lock()
	s.uskOn[idx] = on
	s.mu.Unlock()
	return true
}

// SetMediaPlayer stores the zero-based wire indexes loaded in media player idx.
func (s *Store) SetMediaPlayer(idx int, typ MediaType, still, clip uint8) bool {
	if idx < 0 || idx >= MediaPlayers {
		return false
	}
	s.mu.Lock()
	s.mpType[idx] = typ
	s.mpStill[idx] = still
	s.mpClip[idx] = clip
	s.mu.Unlock()
	return true
}

// SetAuxSource stores the source routed to zero-based aux output idx.
func (s *Store) SetAuxSource(idx int, src uint16) bool {
	if idx < 0 || idx >= AuxOutputs {
		return false
	}
	s.mu.Lock()
	s.aux[idx] = src
	s.mu.Unlock()
	return true
}

// SetVersion stores the firmware version from a _ver segment.
func (s *Store) SetVersion(v wire.Version) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

// SetName stores the product name, cut at the first NUL and at NameLength
// bytes, and reclassifies the model.
func (s *Store) SetName(raw []byte) {
	if len(raw) > NameLength {
		raw = raw[:NameLength]
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	name := string(raw)
	s.mu.Lock()
	s.name = name
	s.model = modelFromName(name)
	s.mu.Unlock()
}

// SetAudioChannelMode stores the mixer mode of zero-based channel ch.
func (s *Store) SetAudioChannelMode(ch int, mode AudioMode) bool {
	if ch < 0 || ch >= AudioChannels {
		return false
	}
	s.mu.Lock()
	s.audioMode[ch] = mode
	s.mu.Unlock()
	return true
}

// SetAudioLevels stores the levels decoded for the selected meter channel.
func (s *Store) SetAudioLevels(left, right uint16) {
	s.mu.Lock()
	s.meterLeft = left
	s.meterRight = right
	s.mu.Unlock()
}

// SetVideoFormat stores the video standard from VidM.
func (s *Store) SetVideoFormat(f VideoFormat) {
	s.mu.Lock()
	s.videoFormat = f
	s.mu.Unlock()
}

// SetMeterChannel selects which channel AMLv segments are decoded for:
// 0 master, 1 monitor, 2.. per-input blocks. This is local state and is
// never sent to the switcher.
func (s *Store) SetMeterChannel(ch uint8) bool {
	if ch > MaxMeterChannel {
		return false
	}
	s.mu.Lock()
	s.meterChannel = ch
	s.mu.Unlock()
	return true
}

// ProgramInput returns the source on the program bus.
func (s *Store) ProgramInput() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.program
}

// PreviewInput returns the source on the preview bus.
func (s *Store) PreviewInput() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview
}

// ProgramTally reports whether 1-based input is on the program bus.
func (s *Store) ProgramTally(input int) bool {
	return s.tallyBits(input)&TallyProgram != 0
}

// PreviewTally reports whether 1-based input is on the preview bus.
func (s *Store) PreviewTally(input int) bool {
	return s.tallyBits(input)&TallyPreview != 0
}

func (s *Store) tallyBits(input int) uint8 {
	if input < 1 || input > MaxTallyInputs {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tally[input-1]
}

// TallyCount is the number of inputs in the last tally table.
func (s *Store) TallyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tallyCount
}

// TransitionStyle returns the selected transition style.
func (s *Store) TransitionStyle() TransitionStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

// TransitionPosition is 0-1000.
func (s *Store) TransitionPosition() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// TransitionFramesRemaining returns the frames left in the running transition.
func (s *Store) TransitionFramesRemaining() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transFrames
}

// TransitionPreview reports whether transition preview is on.
func (s *Store) TransitionPreview() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transPreview
}

// KeyersOnNextTransition returns the raw 5-bit mask.
func (s *Store) KeyersOnNextTransition() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextKeyers
}

// UpstreamKeyerOnNextTransition reports bit k of the next-transition mask,
// where 0 is the background and 1-4 are the upstream keyers.
func (s *Store) UpstreamKeyerOnNextTransition(k int) bool {
	if k < 0 || k > UpstreamKeyers {
		return false
	}
	return s.KeyersOnNextTransition()&(1<<k) != 0
}

// MixTime returns the mix rate in frames.
func (s *Store) MixTime() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mixTime
}

// FadeToBlackActive reports whether fade to black is on or running.
func (s *Store) FadeToBlackActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ftbActive
}

// FadeToBlackFramesRemaining returns the frames left in a running fade.
func (s *Store) FadeToBlackFramesRemaining() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ftbFrames
}

// FadeToBlackTime returns the fade to black rate in frames.
func (s *Store) FadeToBlackTime() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ftbTime
}

// DownstreamKeyer reports whether 1-based DSK keyer is on air.
func (s *Store) DownstreamKeyer(keyer int) bool {
	if keyer < 1 || keyer > DownstreamKeyers {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dskOn[keyer-1]
}

// DownstreamKeyTie reports whether 1-based DSK keyer is tied.
func (s *Store) DownstreamKeyTie(keyer int) bool {
	if keyer < 1 || keyer > DownstreamKeyers {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dskTie[keyer-1]
}

// UpstreamKeyer reports whether 1-based upstream keyer is on.
func (s *Store) UpstreamKeyer(keyer int) bool {
	if keyer < 1 || keyer > UpstreamKeyers {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uskOn[keyer-1]
}

// AuxSource returns the source routed to 1-based aux output.
func (s *Store) AuxSource(aux int) uint16 {
	if aux < 1 || aux > AuxOutputs {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aux[aux-1]
}

// MediaPlayerType returns what 1-based player has loaded.
func (s *Store) MediaPlayerType(player int) MediaType {
	if player < 1 || player > MediaPlayers {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mpType[player-1]
}

// MediaPlayerStill returns the 1-based still index loaded in player.
func (s *Store) MediaPlayerStill(player int) uint8 {
	if player < 1 || player > MediaPlayers {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mpStill[player-1] + 1
}

// MediaPlayerClip returns the 1-based clip index loaded in player.
func (s *Store) MediaPlayerClip(player int) uint8 {
	if player < 1 || player > MediaPlayers {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mpClip[player-1] + 1
}

// AudioChannelMode returns the mixer mode of zero-based channel ch.
func (s *Store) AudioChannelMode(ch int) AudioMode {
	if ch < 0 || ch >= AudioChannels {
		return AudioOff
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioMode[ch]
}

// AudioLevels returns the last left/right levels for the selected meter
// channel.
func (s *Store) AudioLevels() (left, right uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meterLeft, s.meterRight
}

// MeterChannel returns the channel AMLv levels are decoded for.
func (s *Store) MeterChannel() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meterChannel
}

// Version returns the last reported firmware version.
func (s *Store) Version() wire.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Name returns the product name.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Model returns the model classified from the product name.
func (s *Store) Model() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// VideoFormat returns the video standard.
func (s *Store) VideoFormat() VideoFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoFormat
}
