package state

// Snapshot is a point-in-time copy of the store. It is comparable with ==
// so callers can detect changes cheaply.
type Snapshot struct {
	Program    uint16                `json:"program"`
	Preview    uint16                `json:"preview"`
	Tally      [MaxTallyInputs]uint8 `json:"tally"`
	TallyCount int                   `json:"tallyCount"`

	Transition  TransitionSnapshot  `json:"transition"`
	FadeToBlack FadeToBlackSnapshot `json:"fadeToBlack"`

	DownstreamKeyers [DownstreamKeyers]DownstreamKeyerSnapshot `json:"downstreamKeyers"`
	UpstreamKeyers   [UpstreamKeyers]bool                      `json:"upstreamKeyers"`
	Aux              [AuxOutputs]uint16                        `json:"aux"`
	MediaPlayers     [MediaPlayers]MediaPlayerSnapshot         `json:"mediaPlayers"`

	AudioModes   [AudioChannels]AudioMode `json:"audioModes"`
	MeterChannel uint8                    `json:"meterChannel"`
	MeterLeft    uint16                   `json:"meterLeft"`
	MeterRight   uint16                   `json:"meterRight"`

	Firmware    string      `json:"firmware"`
	Wide        bool        `json:"wideSources"`
	Name        string      `json:"name"`
	Model       string      `json:"model"`
	VideoFormat VideoFormat `json:"videoFormat"`
}

// TransitionSnapshot is the transition section of a Snapshot.
type TransitionSnapshot struct {
	Style           TransitionStyle `json:"style"`
	NextKeyers      uint8           `json:"nextKeyers"`
	Position        uint16          `json:"position"`
	FramesRemaining uint8           `json:"framesRemaining"`
	Preview         bool            `json:"preview"`
	MixTime         uint8           `json:"mixTime"`
}

// FadeToBlackSnapshot is the fade-to-black section of a Snapshot.
type FadeToBlackSnapshot struct {
	Active          bool  `json:"active"`
	FramesRemaining uint8 `json:"framesRemaining"`
	Time            uint8 `json:"time"`
}

// DownstreamKeyerSnapshot is one DSK in a Snapshot.
type DownstreamKeyerSnapshot struct {
	On  bool `json:"on"`
	Tie bool `json:"tie"`
}

// MediaPlayerSnapshot is one media player in a Snapshot. Still and Clip are
// 1-based, matching the Store accessors and the control commands.
type MediaPlayerSnapshot struct {
	Type  MediaType `json:"type"`
	Still uint8     `json:"still"`
	Clip  uint8     `json:"clip"`
}

// ProgramTally reports the program bit for 1-based input.
func (s Snapshot) ProgramTally(input int) bool {
	if input < 1 || input > MaxTallyInputs {
		return false
	}
	return s.Tally[input-1]&TallyProgram != 0
}

// PreviewTally reports the preview bit for 1-based input.
func (s Snapshot) PreviewTally(input int) bool {
	if input < 1 || input > MaxTallyInputs {
		return false
	}
	return s.Tally[input-1]&TallyPreview != 0
}

// Snapshot copies the current state under a single read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Program:    s.program,
		Preview:    s.preview,
		Tally:      s.tally,
		TallyCount: s.tallyCount,
		Transition: TransitionSnapshot{
			Style:           s.style,
			NextKeyers:      s.nextKeyers,
			Position:        s.position,
			FramesRemaining: s.transFrames,
			Preview:         s.transPreview,
			MixTime:         s.mixTime,
		},
		FadeToBlack: FadeToBlackSnapshot{
			Active:          s.ftbActive,
			FramesRemaining: s.ftbFrames,
			Time:            s.ftbTime,
		},
		UpstreamKeyers: s.uskOn,
		Aux:            s.aux,
		AudioModes:     s.audioMode,
		MeterChannel:   s.meterChannel,
		MeterLeft:      s.meterLeft,
		MeterRight:     s.meterRight,
		Firmware:       s.version.String(),
		Wide:           s.version.Wide(),
		Name:           s.name,
		Model:          s.model.String(),
		VideoFormat:    s.videoFormat,
	}
	for i := range snap.DownstreamKeyers {
		snap.DownstreamKeyers[i] = DownstreamKeyerSnapshot{On: s.dskOn[i], Tie: s.dskTie[i]}
	}
	for i := range snap.MediaPlayers {
		snap.MediaPlayers[i] = MediaPlayerSnapshot{Type: s.mpType[i], Still: s.mpStill[i] + 1, Clip: s.mpClip[i] + 1}
	}
	return snap
}
