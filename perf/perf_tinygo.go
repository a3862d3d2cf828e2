//go:build tinygo

package perf

import "machine"

// HardwareClock implements Clock using TinyGo's monotonic time source
// (the SysTick-derived runtime clock).
type HardwareClock struct{}

// NewHardwareClock returns the platform's monotonic microsecond clock.
func NewHardwareClock() *HardwareClock {
	return &HardwareClock{}
}

func (HardwareClock) Micros() uint64 {
	return uint64(machine.GetSystemTimer() / 1000)
}
