/*
Package orchestrator is the foreground loop: it drives audio refill,
A/V sync decisions, video rendering and display kickoff at best effort
between interrupts, and composes the boot banner, file-info page, and
completion stats the user-visible surface shows.
*/
package orchestrator

import (
	"errors"
	"log/slog"

	"github.com/dleathers/badapple/audio"
	"github.com/dleathers/badapple/avsync"
	"github.com/dleathers/badapple/display"
	"github.com/dleathers/badapple/fat32"
	"github.com/dleathers/badapple/mediafile"
	"github.com/dleathers/badapple/perf"
	"github.com/dleathers/badapple/sdblock"
)

// Config carries the player's compile-time defaults. There is no config
// file or CLI on the target; everything is fixed at build time.
type Config struct {
	MediaFilename  string
	VideoFPS       uint32
	MaxDriftFrames int32
	Volume         int
}

// DefaultConfig returns the player's built-in settings.
func DefaultConfig() Config {
	return Config{
		MediaFilename:  "BADAPPLE.BIN",
		VideoFPS:       30,
		MaxDriftFrames: 2,
		Volume:         50,
	}
}

// UI is the small set of user-visible surfaces the orchestrator
// composes text for; rendering those strings to the display's font is
// out of scope and lives entirely behind this interface.
type UI interface {
	ShowBoot()
	ShowFileInfo(info mediafile.Header, contiguous bool)
	ShowStarting()
	ShowStats(s FinalStats)
	ShowFatal(reason string)
}

// NopUI implements UI by doing nothing; useful in tests that only care
// about the loop's buffering and sync behavior.
type NopUI struct{}

func (NopUI) ShowBoot()                           {}
func (NopUI) ShowFileInfo(mediafile.Header, bool) {}
func (NopUI) ShowStarting()                       {}
func (NopUI) ShowStats(FinalStats)                {}
func (NopUI) ShowFatal(string)                    {}

// FinalStats is the six-line completion page shown once playback ends.
type FinalStats struct {
	FramesRendered  uint32
	FramesSkipped   uint32
	FramesRepeated  uint32
	RefillCount     uint32
	MaxRefillMicros uint32
	UnderrunCount   uint32
}

// LED is the status indicator the heartbeat drives; hal.StatusLED
// satisfies it on the target.
type LED interface {
	Set(on bool)
}

// Heartbeat drives the 2Hz status LED off the audio sample clock rather
// than a wall-clock read, so it is host-testable and needs no timer of
// its own: feed it the running samples-played count and act on the
// returned edge. At samplesPerToggle = sampleRate/4 the LED toggles
// four times per second of played audio, a 2Hz blink.
type Heartbeat struct {
	samplesPerToggle uint32
	nextToggle       uint32
	On               bool
}

// NewHeartbeat returns a Heartbeat that toggles once every
// samplesPerToggle audio samples.
func NewHeartbeat(samplesPerToggle uint32) *Heartbeat {
	if samplesPerToggle == 0 {
		samplesPerToggle = 1
	}
	return &Heartbeat{samplesPerToggle: samplesPerToggle, nextToggle: samplesPerToggle}
}

// Update advances the heartbeat to samplesPlayed, toggling On once per
// elapsed toggle period and reporting whether it flipped at all. A
// large jump in samplesPlayed flips On once per crossed period so the
// phase stays consistent with the audio clock.
func (h *Heartbeat) Update(samplesPlayed uint32) (toggled bool) {
	for samplesPlayed >= h.nextToggle {
		h.nextToggle += h.samplesPerToggle
		h.On = !h.On
		toggled = true
	}
	return toggled
}

// Halt is the fatal error a failed Boot returns. There is no recovery
// path: the caller is expected to loop forever fast-toggling the status
// LED, distinguishing a dead boot from the slow playback heartbeat.
type Halt struct {
	Reason string
}

func (h Halt) Error() string { return "orchestrator: halted: " + h.Reason }

var (
	ErrNoCard   = errors.New("orchestrator: no sd card")
	ErrNotFound = errors.New("orchestrator: media file not found")
)

// Player wires together the volume, media reader, audio pipeline,
// display pipeline and synchronizer and runs the steady-state loop.
type Player struct {
	cfg Config
	log *slog.Logger
	ui  UI

	vol    *fat32.Volume
	media  *mediafile.Reader
	audioH *audio.Handle
	disp   *display.Pipeline
	sync   *avsync.Synchronizer
	perfT  *perf.Tracker

	dac       audio.DACDriver
	transport display.Transport

	lastRenderedFrame uint32
	hasRendered       bool
	framesRepeated    uint32
	heartbeat         *Heartbeat
	led               LED
}

// New constructs a Player around its collaborators. dev, dac, transport
// and clock are the external-collaborator seams this package depends on;
// everything else is this package's own state.
func New(cfg Config, dev sdblock.BlockDevice, dac audio.DACDriver, transport display.Transport, clock perf.Clock, ui UI, log *slog.Logger) *Player {
	if ui == nil {
		ui = NopUI{}
	}
	return &Player{
		cfg:       cfg,
		log:       log,
		ui:        ui,
		vol:       fat32.NewVolume(dev, log),
		audioH:    audio.New(log),
		disp:      display.NewPipeline(),
		sync:      avsync.New(),
		perfT:     perf.NewTracker(clock),
		dac:       dac,
		transport: transport,
	}
}

// SetStatusLED attaches the LED the playback heartbeat blinks. A nil
// LED (the default) leaves the heartbeat counting without output.
func (p *Player) SetStatusLED(led LED) { p.led = led }

// Boot mounts the volume, locates the media file, and opens it. A
// failure here is fatal: it reports through ui.ShowFatal and returns a
// Halt error the caller should blink forever on.
func (p *Player) Boot() error {
	p.ui.ShowBoot()

	if res := p.vol.Mount(); res != fat32.ResultOK {
		p.ui.ShowFatal("no sd card")
		return Halt{Reason: ErrNoCard.Error()}
	}

	info, res := p.vol.Find(p.cfg.MediaFilename)
	if res != fat32.ResultOK {
		p.ui.ShowFatal("media file not found")
		return Halt{Reason: ErrNotFound.Error()}
	}

	media, mres := mediafile.Open(p.vol, info, p.log)
	if mres != mediafile.ResultOK {
		p.ui.ShowFatal("media file unreadable")
		return Halt{Reason: mres.Error()}
	}
	media.SetVolume(p.cfg.Volume)
	p.media = media

	if err := p.sync.Init(media.Header.SampleRate, p.cfg.VideoFPS, p.cfg.MaxDriftFrames); err != nil {
		p.ui.ShowFatal(err.Error())
		return Halt{Reason: err.Error()}
	}
	p.audioH.SetSink(p.sync)
	p.heartbeat = NewHeartbeat(media.Header.SampleRate / 4)

	p.ui.ShowFileInfo(media.Header, media.IsContiguous)
	return nil
}

// Start preloads both audio buffer halves with real samples (so
// playback never opens on silence that wasn't intended), arms the DAC
// and display, and transitions the synchronizer to RUNNING.
func (p *Player) Start() error {
	p.ui.ShowStarting()

	p.audioH.Init()
	left := p.audioH.GetLeftBuffer()
	right := p.audioH.GetRightBuffer()
	p.media.ReadAudio(left[:audio.HalfSize], right[:audio.HalfSize])
	p.media.ReadAudio(left[audio.HalfSize:], right[audio.HalfSize:])

	if err := p.audioH.Start(p.dac); err != nil {
		return err
	}
	return p.sync.Start()
}

// Step runs one iteration of the steady-state loop: refill (twice,
// since it's higher priority than display), a sync decision, and a
// display kickoff attempt. It returns done=true once playback has
// consumed every video frame.
func (p *Player) Step() (done bool) {
	p.pollRefill()

	if p.sync.AudioFrameIndex() >= p.media.Header.FrameCount {
		return true
	}

	switch decision, err := p.sync.GetFrameDecision(); {
	case err != nil:
		// Not running; nothing to do this tick.
	case decision == avsync.RenderFrame:
		target := p.sync.AudioFrameIndex()
		if !p.hasRendered || target != p.lastRenderedFrame {
			buf := p.disp.GetRenderBuffer()
			p.media.ReadFrameAt(target, buf)
			p.disp.SwapBuffers()
			p.lastRenderedFrame = target
			p.hasRendered = true
		}
		p.sync.FrameRendered()
	case decision == avsync.SkipFrame:
		p.sync.FrameSkipped()
	case decision == avsync.RepeatFrame:
		p.sync.FrameRepeated()
		p.framesRepeated++
	}

	if !p.disp.TransferBusy() && p.disp.HasFrame() {
		if p.disp.StartTransfer() {
			p.transport.WriteFrame(p.disp.GetTransferBuffer()[:])
		}
	}

	p.pollRefill()
	return false
}

// pollRefill services a pending audio half-buffer refill, timing it
// with the perf tracker so the completion page can show the worst case.
func (p *Player) pollRefill() {
	if !p.audioH.NeedsRefill() {
		return
	}
	start := p.perfT.Start()

	half := p.audioH.GetFillHalf()
	offset := 0
	if half == audio.FillSecond {
		offset = audio.HalfSize
	}
	left := p.audioH.GetLeftBuffer()
	right := p.audioH.GetRightBuffer()
	p.media.ReadAudio(left[offset:offset+audio.HalfSize], right[offset:offset+audio.HalfSize])
	p.audioH.BufferFilled()

	p.perfT.Stop(start)
}

// Run drives Step until playback completes, toggling the heartbeat and
// reporting final stats through ui.
func (p *Player) Run() FinalStats {
	for {
		if p.heartbeat.Update(p.sync.AudioSamplesPlayed()) && p.led != nil {
			p.led.Set(p.heartbeat.On)
		}
		if p.Step() {
			break
		}
	}
	p.audioH.Stop(p.dac)
	p.sync.Stop()

	stats := FinalStats{
		FramesRendered:  p.sync.VideoFramesRendered(),
		FramesSkipped:   p.sync.Stats.FramesSkipped,
		FramesRepeated:  p.framesRepeated,
		RefillCount:     p.audioH.Stats.RefillCount,
		MaxRefillMicros: p.perfT.MaxMicros,
		UnderrunCount:   p.audioH.Stats.UnderrunCount,
	}
	p.ui.ShowStats(stats)
	return stats
}

// Heartbeat exposes the playback heartbeat. Only valid after a
// successful Boot, which sizes the toggle period from the media's
// sample rate.
func (p *Player) Heartbeat() *Heartbeat { return p.heartbeat }

// AudioHandle exposes the audio pipeline so a DACDriver constructed
// before the Player can be wired to the same instance whose
// HalfComplete/TransferComplete methods its ISR must call.
func (p *Player) AudioHandle() *audio.Handle { return p.audioH }

// DisplayPipeline exposes the display pipeline so a Transport constructed
// before the Player can wire its completion callback to
// TransferComplete.
func (p *Player) DisplayPipeline() *display.Pipeline { return p.disp }

// MediaSampleRate returns the open file's audio sample rate. Only valid
// after a successful Boot.
func (p *Player) MediaSampleRate() uint32 { return p.media.Header.SampleRate }
