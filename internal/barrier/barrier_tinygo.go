//go:build tinygo

package barrier

import "device/arm"

// DataMemoryBarrier issues a full data memory barrier. The audio and
// display buffers are shared with DMA engines that do not participate in
// the CPU's normal memory ordering, so every write that must be visible
// to a DMA engine before it is kicked off is followed by one of these.
func DataMemoryBarrier() {
	arm.Asm("dmb 0xF")
}
