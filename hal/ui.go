//go:build tinygo

package hal

import (
	"log/slog"

	"github.com/dleathers/badapple/mediafile"
	"github.com/dleathers/badapple/orchestrator"
)

// LogUI implements orchestrator.UI by logging the composed text rather
// than rendering it to the OLED: blitting a font onto the framebuffer is
// a rendering concern the display pipeline leaves to whatever draws
// into its render buffer, and this player never draws status text over
// the video it's playing.
type LogUI struct {
	log *slog.Logger
}

// NewLogUI returns a LogUI that logs through log.
func NewLogUI(log *slog.Logger) *LogUI {
	return &LogUI{log: log}
}

func (u *LogUI) ShowBoot() {
	u.log.Info("badapple: booting")
}

func (u *LogUI) ShowFileInfo(info mediafile.Header, contiguous bool) {
	u.log.Info("badapple: media opened",
		slog.Uint64("frames", uint64(info.FrameCount)),
		slog.Uint64("sampleRate", uint64(info.SampleRate)),
		slog.Bool("contiguous", contiguous))
}

func (u *LogUI) ShowStarting() {
	u.log.Info("badapple: starting playback")
}

func (u *LogUI) ShowStats(s orchestrator.FinalStats) {
	u.log.Info("badapple: playback finished",
		slog.Uint64("framesRendered", uint64(s.FramesRendered)),
		slog.Uint64("framesSkipped", uint64(s.FramesSkipped)),
		slog.Uint64("framesRepeated", uint64(s.FramesRepeated)),
		slog.Uint64("refillCount", uint64(s.RefillCount)),
		slog.Uint64("maxRefillMicros", uint64(s.MaxRefillMicros)),
		slog.Uint64("underrunCount", uint64(s.UnderrunCount)))
}

func (u *LogUI) ShowFatal(reason string) {
	u.log.Error("badapple: fatal", slog.String("reason", reason))
}
