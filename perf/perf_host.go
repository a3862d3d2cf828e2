//go:build !tinygo

package perf

import "time"

// HostClock implements Clock using the wall clock, for host builds and
// tests where there is no DWT cycle counter to read.
type HostClock struct {
	start time.Time
}

// NewHostClock returns a Clock anchored at the current time.
func NewHostClock() *HostClock {
	return &HostClock{start: time.Now()}
}

func (c *HostClock) Micros() uint64 {
	return uint64(time.Since(c.start) / time.Microsecond)
}
