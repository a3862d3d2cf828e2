//go:build tinygo

package hal

import (
	"machine"

	coreaudio "github.com/dleathers/badapple/audio"
)

// pwmDevice is the subset of a TinyGo PWM peripheral this driver needs,
// narrowed to keep dacChannel's construction testable independent of
// which PWM slice a pin maps to.
type pwmDevice interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	SetTop(top uint32)
	Top() uint32
	Set(channel uint8, value uint32)
	Enable(enable bool)
}

// dacChannel stands in for a 12-bit hardware DAC channel on chips that
// have no DAC peripheral: PWM duty cycle at a fixed high-frequency
// carrier approximates the analog output after the board's output
// filtering.
type dacChannel struct {
	pin machine.Pin
	pwm pwmDevice
	ch  uint8
	top uint32
}

func newDACChannel(pin machine.Pin, pwm pwmDevice) (*dacChannel, error) {
	const carrierHz = 250_000
	if err := pwm.Configure(machine.PWMConfig{Period: 1e9 / carrierHz}); err != nil {
		return nil, err
	}
	ch, err := pwm.Channel(pin)
	if err != nil {
		return nil, err
	}
	pwm.SetTop(0xFFF) // 12-bit duty range, same resolution as a real DAC channel.
	d := &dacChannel{pin: pin, pwm: pwm, ch: ch, top: pwm.Top()}
	d.write(0x800) // DAC midpoint, matching audio.Handle's pre-start silence fill.
	return d, nil
}

func (d *dacChannel) write(v uint16) {
	duty := uint32(v) * d.top / 0xFFF
	d.pwm.Set(d.ch, duty)
}

func (d *dacChannel) enable(on bool) { d.pwm.Enable(on) }

// TimerDAC drives both stereo channels from a single periodic hardware
// timer tick. TinyGo has no portable circular-DMA-to-DAC API, so this
// driver reads one sample per timer interrupt instead of letting DMA
// stream whole half-buffers unattended. It still honors the
// audio.DACDriver contract: StartCircular hands it the same two backing
// slices audio.Handle owns, and it calls HalfComplete/TransferComplete
// at exactly the N and 2N sample marks, preserving the interrupt
// contract audio.Handle's state machine depends on.
type TimerDAC struct {
	timer  *machine.Timer
	left   *dacChannel
	right  *dacChannel
	handle *coreaudio.Handle

	leftBuf, rightBuf []uint16
	pos               uint32
}

// NewTimerDAC constructs a TimerDAC. Call SetHandle before StartCircular
// — the DACDriver has to exist before orchestrator.New can build the
// Player around it, but the audio.Handle it ticks only exists after.
func NewTimerDAC(timer *machine.Timer, leftPin, rightPin machine.Pin, leftPWM, rightPWM pwmDevice) (*TimerDAC, error) {
	left, err := newDACChannel(leftPin, leftPWM)
	if err != nil {
		return nil, err
	}
	right, err := newDACChannel(rightPin, rightPWM)
	if err != nil {
		return nil, err
	}
	return &TimerDAC{timer: timer, left: left, right: right}, nil
}

// SetHandle attaches the audio.Handle whose HalfComplete/TransferComplete
// the timer ISR calls.
func (t *TimerDAC) SetHandle(handle *coreaudio.Handle) { t.handle = handle }

func (t *TimerDAC) StartCircular(left, right []uint16) error {
	t.leftBuf, t.rightBuf = left, right
	t.pos = 0
	t.left.enable(true)
	t.right.enable(true)
	return t.timer.Configure(machine.TimerConfig{
		Period:   uint64(1e9 / sampleTimerHz),
		Callback: t.tick,
	})
}

func (t *TimerDAC) Stop() {
	t.left.enable(false)
	t.right.enable(false)
	t.timer.Stop()
}

// sampleTimerHz is the DAC sample rate the timer is configured for;
// cmd/badapple sets it from the media header through SetSampleRate after
// Boot and before Start.
var sampleTimerHz uint32 = 44100

// SetSampleRate must be called before Start, once the media header's
// sample rate is known.
func SetSampleRate(hz uint32) { sampleTimerHz = hz }

func (t *TimerDAC) tick(*machine.Timer) {
	n := uint32(len(t.leftBuf))
	if n == 0 {
		return
	}
	t.left.write(t.leftBuf[t.pos])
	t.right.write(t.rightBuf[t.pos])
	t.pos++
	half := n / 2
	switch t.pos {
	case half:
		t.handle.HalfComplete()
	case n:
		t.handle.TransferComplete()
		t.pos = 0
	}
}
