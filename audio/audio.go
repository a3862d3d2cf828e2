/*
Package audio drives the two equal-length circular sample buffers that
feed the stereo DAC. Only the LEFT channel's DMA engine reports
half-complete and transfer-complete interrupts; the RIGHT channel is
armed identically and follows silently, since both channels are
triggered off the same hardware timer and therefore stay sample-locked
without needing their own interrupt.
*/
package audio

import (
	"errors"
	"log/slog"
)

// HalfSize (N) is the sample count of one half of each circular buffer.
const HalfSize = 2048

// dacSilence is the 12-bit DAC midpoint output for 0 volts.
const dacSilence = 0x800

// FillHalf identifies which half of the circular buffer the foreground
// must refill next.
type FillHalf uint8

const (
	FillFirst  FillHalf = iota // samples [0, N) need refilling.
	FillSecond                 // samples [N, 2N) need refilling.
)

// State is the audio handle's closed state machine.
type State uint8

const (
	StateReset State = iota
	StateReady
	StatePlaying
	StateError
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongState is returned when an operation is attempted outside
	// the state it requires.
	ErrWrongState = errors.New("audio: invalid call for current state")
)

// DACDriver is the hardware seam a Handle drives. Implementations arm
// two independent circular DMA streams into the two DAC channels from
// the same periodic trigger so they advance lock-step.
type DACDriver interface {
	StartCircular(left, right []uint16) error
	Stop()
}

// Sink receives sample-count ticks from the audio ISR. avsync.Synchronizer
// implements this; Handle holds it as a plain interface (not a concrete
// *avsync.Synchronizer) so the two packages don't form an ownership
// cycle — both are owned by the orchestrator, and audio only calls into
// the sink.
type Sink interface {
	AudioTick(samples uint32)
}

// Stats are the counters the completion page reports.
type Stats struct {
	SamplesPlayed uint32
	RefillCount   uint32
	UnderrunCount uint32
}

// Handle owns the two circular buffers and the half-complete/transfer-
// complete interrupt bookkeeping. Its ISR-facing methods (HalfComplete,
// TransferComplete) and its foreground-facing methods (NeedsRefill,
// GetFillHalf, BufferFilled) touch disjoint fields except NeedsRefill
// and FillHalf, which the interrupt ordering guarantees the foreground
// observes on its next poll after the ISR sets them.
type Handle struct {
	log *slog.Logger

	left  [2 * HalfSize]uint16
	right [2 * HalfSize]uint16

	needsRefill bool
	fillHalf    FillHalf
	state       State

	Stats Stats
	sink  Sink
}

// New constructs a Handle in the RESET state.
func New(log *slog.Logger) *Handle {
	return &Handle{log: log}
}

// SetSink attaches the sample-tick destination the audio ISR calls into.
// A nil sink (the default) simply drops ticks.
func (h *Handle) SetSink(s Sink) { h.sink = s }

// Init fills both buffer halves with the DAC midpoint and transitions to
// READY, guaranteeing silence if playback starts before the foreground
// ever writes real samples.
func (h *Handle) Init() {
	for i := range h.left {
		h.left[i] = dacSilence
		h.right[i] = dacSilence
	}
	h.needsRefill = false
	h.Stats = Stats{}
	h.state = StateReady
}

// Start arms driver with the full circular buffers and transitions to
// PLAYING. It fails outside READY.
func (h *Handle) Start(driver DACDriver) error {
	if h.state != StateReady {
		return ErrWrongState
	}
	if err := driver.StartCircular(h.left[:], h.right[:]); err != nil {
		h.state = StateError
		return err
	}
	h.state = StatePlaying
	return nil
}

// Stop halts driver and returns to READY.
func (h *Handle) Stop(driver DACDriver) {
	driver.Stop()
	h.state = StateReady
}

// State returns the handle's current state.
func (h *Handle) State() State { return h.state }

// NeedsRefill reports whether the foreground has a half-buffer to fill.
func (h *Handle) NeedsRefill() bool { return h.needsRefill }

// GetFillHalf reports which half needs refilling.
func (h *Handle) GetFillHalf() FillHalf { return h.fillHalf }

// GetLeftBuffer returns the full 2N-sample left-channel buffer. The
// foreground must only write the half indicated by GetFillHalf.
func (h *Handle) GetLeftBuffer() []uint16 { return h.left[:] }

// GetRightBuffer returns the full 2N-sample right-channel buffer.
func (h *Handle) GetRightBuffer() []uint16 { return h.right[:] }

// BufferFilled transfers ownership of the just-filled half back to DMA.
func (h *Handle) BufferFilled() {
	h.needsRefill = false
	h.Stats.RefillCount += HalfSize
}

// HalfComplete is called from the LEFT channel's half-complete ISR: the
// DAC has just finished [0,N) and is now reading [N,2N).
func (h *Handle) HalfComplete() {
	h.tick(FillFirst)
}

// TransferComplete is called from the LEFT channel's transfer-complete
// ISR: the DAC has just finished [N,2N) and wrapped to [0,N).
func (h *Handle) TransferComplete() {
	h.tick(FillSecond)
}

func (h *Handle) tick(half FillHalf) {
	if h.needsRefill {
		// The half the foreground was supposed to have filled by now is
		// about to be replayed unchanged: the DMA engine keeps reading
		// whatever is already in that half of the buffer.
		h.Stats.UnderrunCount++
	}
	h.fillHalf = half
	h.needsRefill = true
	h.Stats.SamplesPlayed += HalfSize
	if h.sink != nil {
		h.sink.AudioTick(HalfSize)
	}
}
