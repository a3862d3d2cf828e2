//go:build tinygo

package hal

import (
	"machine"
	"time"
)

// StatusLED is the onboard LED as an orchestrator.LED, plus the fast
// fatal-blink pattern orchestrator.Halt callers use when Boot fails.
type StatusLED struct {
	pin machine.Pin
}

// NewStatusLED configures pin as a GPIO output for the heartbeat LED.
func NewStatusLED(pin machine.Pin) *StatusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &StatusLED{pin: pin}
}

// Set mirrors on onto the pin. The orchestrator's playback heartbeat
// calls this on every toggle edge.
func (l *StatusLED) Set(on bool) { l.pin.Set(on) }

// BlinkForever toggles the LED at the given period forever, the
// NO_CARD/NOT_FOUND/INVALID_PARAM fatal pattern — the caller's main
// loop has nothing left to do once Boot returns an orchestrator.Halt.
func (l *StatusLED) BlinkForever(period time.Duration) {
	on := false
	for {
		on = !on
		l.Set(on)
		time.Sleep(period)
	}
}
