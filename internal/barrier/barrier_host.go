//go:build !tinygo

package barrier

// DataMemoryBarrier is a no-op on host builds; there is no DMA engine to
// race against off-target. Core packages call it unconditionally so the
// same code path runs under `go test` and under tinygo.
func DataMemoryBarrier() {}
