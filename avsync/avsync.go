/*
Package avsync derives render/skip/repeat decisions from the audio
sample clock. Audio is the wall clock here: the DAC rate can't be
slewed, so every half-buffer interrupt deposits samples into a counter
the foreground periodically converts into a frame index and compares
against how many frames it has actually rendered.
*/
package avsync

import "errors"

// DefaultMaxDriftFrames is used when Init is called with maxDrift=0.
const DefaultMaxDriftFrames = 2

// State is the synchronizer's closed state machine.
type State uint8

const (
	StateReset State = iota
	StateReady
	StateRunning
	StateStopped
)

// Decision is the per-tick verdict GetFrameDecision returns.
type Decision uint8

const (
	RenderFrame Decision = iota
	SkipFrame
	RepeatFrame
)

func (d Decision) String() string {
	switch d {
	case RenderFrame:
		return "render"
	case SkipFrame:
		return "skip"
	case RepeatFrame:
		return "repeat"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidSamplesPerFrame = errors.New("avsync: samples per frame must be > 0")
	ErrNotStarted             = errors.New("avsync: not running")
	ErrWrongState             = errors.New("avsync: invalid call for current state")
)

// Stats are the drift extremes the completion stats page can report.
type Stats struct {
	FramesSkipped  uint32
	FramesRepeated uint32
	MaxDrift       int32
	MinDrift       int32
}

// Synchronizer converts audio-samples-played into a frame decision.
// It implements audio.Sink so an audio.Handle can hold it (as that
// interface, not this concrete type) without an import cycle.
type Synchronizer struct {
	sampleRate      uint32
	videoFPS        uint32
	samplesPerFrame uint32
	maxDriftFrames  int32

	state State

	audioSamplesPlayed uint32
	videoFramesRendered uint32

	Stats Stats
}

// New constructs a Synchronizer in the RESET state.
func New() *Synchronizer {
	return &Synchronizer{}
}

// Init computes samplesPerFrame = sampleRate/videoFPS and transitions to
// READY. maxDrift=0 selects DefaultMaxDriftFrames.
func (s *Synchronizer) Init(sampleRate, videoFPS uint32, maxDrift int32) error {
	if videoFPS == 0 {
		return ErrInvalidSamplesPerFrame
	}
	spf := sampleRate / videoFPS
	if spf < 1 {
		return ErrInvalidSamplesPerFrame
	}
	if maxDrift == 0 {
		maxDrift = DefaultMaxDriftFrames
	}
	s.sampleRate = sampleRate
	s.videoFPS = videoFPS
	s.samplesPerFrame = spf
	s.maxDriftFrames = maxDrift
	s.state = StateReady
	s.audioSamplesPlayed = 0
	s.videoFramesRendered = 0
	s.Stats = Stats{}
	return nil
}

// SamplesPerFrame returns the invariant computed at Init.
func (s *Synchronizer) SamplesPerFrame() uint32 { return s.samplesPerFrame }

// Start transitions READY->RUNNING.
func (s *Synchronizer) Start() error {
	if s.state != StateReady {
		return ErrWrongState
	}
	s.state = StateRunning
	return nil
}

// Stop transitions to STOPPED from any state.
func (s *Synchronizer) Stop() {
	s.state = StateStopped
}

// State returns the current state.
func (s *Synchronizer) State() State { return s.state }

// AudioTick is the ISR-facing entry point (it implements audio.Sink):
// audio_samples_played only increases while RUNNING.
func (s *Synchronizer) AudioTick(samples uint32) {
	if s.state == StateRunning {
		s.audioSamplesPlayed += samples
	}
}

// AudioSamplesPlayed returns the running sample count.
func (s *Synchronizer) AudioSamplesPlayed() uint32 { return s.audioSamplesPlayed }

// VideoFramesRendered returns the committed video frame count.
func (s *Synchronizer) VideoFramesRendered() uint32 { return s.videoFramesRendered }

// AudioFrameIndex is audio_samples_played / samples_per_frame, truncated
// toward zero as with any unsigned integer division.
func (s *Synchronizer) AudioFrameIndex() uint32 {
	return s.audioSamplesPlayed / s.samplesPerFrame
}

// GetFrameDecision applies the sync decision law: SKIP if video is more
// than maxDriftFrames behind, REPEAT if more than maxDriftFrames ahead,
// RENDER otherwise (the +-maxDriftFrames band is inclusive).
func (s *Synchronizer) GetFrameDecision() (Decision, error) {
	if s.state != StateRunning {
		return 0, ErrNotStarted
	}
	drift := int32(s.videoFramesRendered) - int32(s.AudioFrameIndex())
	if drift > s.Stats.MaxDrift {
		s.Stats.MaxDrift = drift
	}
	if drift < s.Stats.MinDrift {
		s.Stats.MinDrift = drift
	}
	switch {
	case drift < -s.maxDriftFrames:
		return SkipFrame, nil
	case drift > s.maxDriftFrames:
		return RepeatFrame, nil
	default:
		return RenderFrame, nil
	}
}

// FrameRendered advances the committed frame counter after a RENDER
// decision has actually drawn and swapped a frame.
func (s *Synchronizer) FrameRendered() {
	s.videoFramesRendered++
}

// FrameSkipped advances the committed frame counter for a SKIP
// decision and counts it in Stats.
func (s *Synchronizer) FrameSkipped() {
	s.videoFramesRendered++
	s.Stats.FramesSkipped++
}

// FrameRepeated records a REPEAT decision. It does not advance
// videoFramesRendered: the currently displayed frame is simply held.
func (s *Synchronizer) FrameRepeated() {
	s.Stats.FramesRepeated++
}
