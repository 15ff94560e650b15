package session

import (
	"fmt"

	"github.com/zsiec/atemtally/internal/command"
	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/transport"
)

// Control entry points. Each validates its arguments, resolves the wire
// encoding from the firmware version currently in the store and sends one
// command datagram. A rejected command sends nothing and does not consume a
// packet ID.

func (s *Session) encoder() *command.Encoder {
	return command.NewEncoder(s.store.Encoding(), s.store)
}

func (s *Session) exec(c command.Command, err error) error {
	if err != nil {
		return err
	}
	return s.Send(c)
}

// Send frames and sends an already encoded command.
func (s *Session) Send(c command.Command) error {
	if s.state != Initializing && s.state != Ready {
		return ErrNotConnected
	}
	if s.counter.Exhausted() {
		return s.dropExhausted()
	}
	id := s.counter.Peek()
	b, err := transport.AppendCommand(s.tx[:0], s.sessionID, id, c.Tag, c.Payload)
	if err != nil {
		return fmt.Errorf("session: frame %s: %w", c.Tag, err)
	}
	s.tx = b
	if err := s.conn.Send(b); err != nil {
		return fmt.Errorf("session: send %s: %w", c.Tag, err)
	}
	// Exhaustion was checked above; the ID just sent is consumed.
	_, _ = s.counter.Next()
	s.metrics.DatagramSent("command")
	if s.verbose {
		s.log.Debug("command", "tag", c.Tag.String(), "packet_id", id, "payload", c.Payload)
	}
	return nil
}

// dropExhausted moves the session to Disconnected once every local packet ID
// has been used. The next Connect resets the counter.
func (s *Session) dropExhausted() error {
	err := fmt.Errorf("session: %w", transport.ErrPacketIDsExhausted)
	s.lastErr = err
	s.initialized = false
	s.log.Warn("local packet IDs exhausted, reconnecting")
	s.setState(Disconnected)
	return err
}

// ChangeProgramInput puts src on the program bus.
func (s *Session) ChangeProgramInput(src uint16) error {
	return s.exec(s.encoder().ProgramInput(src))
}

// ChangePreviewInput puts src on the preview bus.
func (s *Session) ChangePreviewInput(src uint16) error {
	return s.exec(s.encoder().PreviewInput(src))
}

// Cut swaps program and preview immediately.
func (s *Session) Cut() error {
	return s.exec(s.encoder().Cut())
}

// Auto runs the configured transition.
func (s *Session) Auto() error {
	return s.exec(s.encoder().Auto())
}

// FadeToBlack toggles fade to black.
func (s *Session) FadeToBlack() error {
	return s.exec(s.encoder().FadeToBlack())
}

// ChangeTransitionPosition moves the T-bar (1..1000). After the final step
// call ChangeTransitionPositionDone.
func (s *Session) ChangeTransitionPosition(pos int) error {
	return s.exec(s.encoder().TransitionPosition(pos))
}

// ChangeTransitionPositionDone releases the T-bar after a manual transition.
func (s *Session) ChangeTransitionPositionDone() error {
	return s.exec(s.encoder().TransitionPositionDone())
}

// ChangeTransitionPreview toggles transition preview.
func (s *Session) ChangeTransitionPreview(on bool) error {
	return s.exec(s.encoder().TransitionPreview(on))
}

// ChangeTransitionStyle selects the transition style used by Auto.
func (s *Session) ChangeTransitionStyle(style state.TransitionStyle) error {
	return s.exec(s.encoder().TransitionStyle(style))
}

// ChangeMixTime sets the mix transition rate in frames.
func (s *Session) ChangeMixTime(frames int) error {
	return s.exec(s.encoder().MixTime(frames))
}

// ChangeFadeToBlackTime sets the fade to black rate in frames.
func (s *Session) ChangeFadeToBlackTime(frames int) error {
	return s.exec(s.encoder().FadeToBlackTime(frames))
}

// ChangeUpstreamKeyerOn puts upstream keyer 1..4 on or off air.
func (s *Session) ChangeUpstreamKeyerOn(keyer int, on bool) error {
	return s.exec(s.encoder().UpstreamKeyerOn(keyer, on))
}

// ChangeKeyerOnNextTransition toggles layer 0 (background) or upstream
// keyer 1..4 for the next transition.
func (s *Session) ChangeKeyerOnNextTransition(layer int, on bool) error {
	return s.exec(s.encoder().KeyerOnNextTransition(layer, on))
}

// ChangeDownstreamKeyerOn puts downstream keyer 1..2 on or off air.
func (s *Session) ChangeDownstreamKeyerOn(keyer int, on bool) error {
	return s.exec(s.encoder().DownstreamKeyerOn(keyer, on))
}

// ChangeDownstreamKeyerTie ties downstream keyer 1..2 to the next transition.
func (s *Session) ChangeDownstreamKeyerTie(keyer int, tie bool) error {
	return s.exec(s.encoder().DownstreamKeyerTie(keyer, tie))
}

// DownstreamKeyerAuto runs the auto transition of downstream keyer 1..2.
func (s *Session) DownstreamKeyerAuto(keyer int) error {
	return s.exec(s.encoder().DownstreamKeyerAuto(keyer))
}

// ChangeAuxSource routes src to aux output 1..3.
func (s *Session) ChangeAuxSource(aux int, src uint16) error {
	return s.exec(s.encoder().AuxSource(aux, src))
}

// SaveSettings asks the switcher to persist its startup state.
func (s *Session) SaveSettings() error {
	return s.exec(s.encoder().SaveSettings())
}

// ClearSettings clears the persisted startup state.
func (s *Session) ClearSettings() error {
	return s.exec(s.encoder().ClearSettings())
}

// ChangeColorGenerator sets hue, saturation and luma of color generator 1..2.
func (s *Session) ChangeColorGenerator(gen, hue, sat, light int) error {
	return s.exec(s.encoder().ColorGenerator(gen, hue, sat, light))
}

// ChangeMediaPlayerSource sends both media selection commands back to back.
func (s *Session) ChangeMediaPlayerSource(player int, clip bool, index int) error {
	cmds, err := s.encoder().MediaPlayerSource(player, clip, index)
	if err != nil {
		return err
	}
	for i, c := range cmds {
		if err := s.Send(c); err != nil {
			if i > 0 {
				return fmt.Errorf("session: MPSS companion: %w", err)
			}
			return err
		}
	}
	return nil
}

// MediaPlayerStart starts playback on media player 1..2.
func (s *Session) MediaPlayerStart(player int) error {
	return s.exec(s.encoder().MediaPlayerStart(player))
}

// ChangeVideoFormat changes the switcher video standard.
func (s *Session) ChangeVideoFormat(f state.VideoFormat) error {
	return s.exec(s.encoder().VideoFormat(f))
}

// ChangeDVEPosition moves and scales the upstream DVE box.
func (s *Session) ChangeDVEPosition(x, y int32, w, h uint16) error {
	return s.exec(s.encoder().DVEPosition(x, y, w, h))
}

// ChangeDVEMask sets the upstream DVE mask.
func (s *Session) ChangeDVEMask(m command.Mask) error {
	return s.exec(s.encoder().DVEMask(m))
}

// ChangeDVEBorder toggles the upstream DVE border.
func (s *Session) ChangeDVEBorder(on bool) error {
	return s.exec(s.encoder().DVEBorder(on))
}

// ChangeDVERate sets the DVE key frame rate in frames.
func (s *Session) ChangeDVERate(frames uint8) error {
	return s.exec(s.encoder().DVERate(frames))
}

// DVERunKeyFrame runs the DVE to the given key frame.
func (s *Session) DVERunKeyFrame(run int) error {
	return s.exec(s.encoder().DVERunKeyFrame(run))
}

// ChangeKeyerMask sets the upstream keyer mask.
func (s *Session) ChangeKeyerMask(m command.Mask) error {
	return s.exec(s.encoder().KeyerMask(m))
}

// ChangeDownstreamKeyerMask sets the mask of downstream keyer 1..2.
func (s *Session) ChangeDownstreamKeyerMask(keyer int, m command.Mask) error {
	return s.exec(s.encoder().DownstreamKeyerMask(keyer, m))
}

// ChangeUpstreamKeyerFill sets the fill source of upstream keyer 1..4.
func (s *Session) ChangeUpstreamKeyerFill(keyer int, src uint16) error {
	return s.exec(s.encoder().UpstreamKeyerFill(keyer, src))
}

// ChangeDownstreamKeyerFill sets the fill source of downstream keyer 1..2.
func (s *Session) ChangeDownstreamKeyerFill(keyer int, src uint16) error {
	return s.exec(s.encoder().DownstreamKeyerFill(keyer, src))
}

// ChangeDownstreamKeyerKey sets the key source of downstream keyer 1..2.
func (s *Session) ChangeDownstreamKeyerKey(keyer int, src uint16) error {
	return s.exec(s.encoder().DownstreamKeyerKey(keyer, src))
}

// ChangeUpstreamKeyerBlending sets the luma key blending of upstream keyer 1..4.
func (s *Session) ChangeUpstreamKeyerBlending(keyer int, b command.Blending) error {
	return s.exec(s.encoder().UpstreamKeyerBlending(keyer, b))
}

// ChangeDownstreamKeyerBlending sets the blending of downstream keyer 1..2.
func (s *Session) ChangeDownstreamKeyerBlending(keyer int, b command.Blending) error {
	return s.exec(s.encoder().DownstreamKeyerBlending(keyer, b))
}

// ChangeAudioChannelMode sets the mixer mode of an audio channel.
func (s *Session) ChangeAudioChannelMode(channel uint16, mode state.AudioMode) error {
	return s.exec(s.encoder().AudioChannelMode(channel, mode))
}

// ChangeAudioChannelVolume sets the gain of an audio channel.
func (s *Session) ChangeAudioChannelVolume(channel, volume uint16) error {
	return s.exec(s.encoder().AudioChannelVolume(channel, volume))
}

// ChangeMasterVolume sets the audio master gain.
func (s *Session) ChangeMasterVolume(volume uint16) error {
	return s.exec(s.encoder().MasterVolume(volume))
}

// SendAudioLevels turns audio level streaming on or off.
func (s *Session) SendAudioLevels(on bool) error {
	return s.exec(s.encoder().AudioLevelStreaming(on))
}

// ChangeWipeReverse toggles the wipe reverse direction.
func (s *Session) ChangeWipeReverse(reverse bool) error {
	return s.exec(s.encoder().WipeReverse(reverse))
}

// SetMeterChannel selects which channel's levels are decoded from AMLv
// (0 master, 1 monitor, then inputs). Nothing is sent to the switcher.
func (s *Session) SetMeterChannel(ch int) error {
	if ch < 0 || ch > state.MaxMeterChannel {
		return &command.ValidationError{Field: "meter channel", Value: ch, Min: 0, Max: state.MaxMeterChannel}
	}
	s.store.SetMeterChannel(uint8(ch))
	return nil
}
