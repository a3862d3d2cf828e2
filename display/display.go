/*
Package display owns the three rotating framebuffers behind the OLED's
DMA transfer path. Three buffers, not two, let the foreground drop a
stale queued frame under back-pressure without ever touching the buffer
currently in flight to the display controller.
*/
package display

// FrameBytes is the size of one SSD1306 128x64 monochrome framebuffer:
// 8 pages of 128 column bytes.
const FrameBytes = 1024

// Transport is the hardware seam a Pipeline drives; SSD1306 command-
// sequence and initialization details live entirely behind it.
type Transport interface {
	// WriteFrame starts an asynchronous write of buf to the display.
	// Completion is reported back through Pipeline.TransferComplete,
	// called from the transport's own DMA-completion ISR.
	WriteFrame(buf []byte) error
}

// MaskInterrupts/UnmaskInterrupts bracket the sections of buffer-index
// bookkeeping that must be atomic with respect to the display
// DMA-completion ISR. Both default to no-ops, and no package in this
// module replaces them, so on every build the index bookkeeping runs
// without interrupts masked unless a caller assigns real hooks.
var (
	MaskInterrupts   = func() {}
	UnmaskInterrupts = func() {}
)

func withMasked(fn func()) {
	MaskInterrupts()
	fn()
	UnmaskInterrupts()
}

// Pipeline holds the three framebuffers and the render/ready/transfer
// index permutation describing which buffer plays which role.
type Pipeline struct {
	buffers [3][FrameBytes]byte

	render   int
	ready    int
	transfer int

	transferBusy bool

	FramesRendered    uint32
	FramesTransferred uint32
}

// NewPipeline returns a Pipeline with the fixed starting permutation:
// render=0, ready=2, transfer=1.
func NewPipeline() *Pipeline {
	return &Pipeline{render: 0, ready: 2, transfer: 1}
}

// GetRenderBuffer returns the buffer the foreground should draw into.
func (p *Pipeline) GetRenderBuffer() *[FrameBytes]byte {
	return &p.buffers[p.render]
}

// SwapBuffers is called once the foreground has finished drawing into
// the render buffer. It rotates render<->ready, discarding any
// previously queued but untransferred frame, and counts the newly
// rendered frame.
func (p *Pipeline) SwapBuffers() {
	withMasked(func() {
		p.render, p.ready = p.ready, p.render
		p.FramesRendered++
	})
}

// HasFrame reports whether a rendered frame is waiting to be sent.
func (p *Pipeline) HasFrame() bool {
	return p.FramesRendered > p.FramesTransferred
}

// StartTransfer rotates ready<->transfer and marks the transfer busy,
// if one isn't already in flight and a frame is queued. On success the
// caller reads GetTransferBuffer and issues the DMA write.
func (p *Pipeline) StartTransfer() bool {
	ok := false
	withMasked(func() {
		if p.transferBusy || p.FramesRendered <= p.FramesTransferred {
			return
		}
		p.ready, p.transfer = p.transfer, p.ready
		p.transferBusy = true
		ok = true
	})
	return ok
}

// GetTransferBuffer returns the buffer currently (or about to be) in
// flight to the display. The foreground must not write to it while
// TransferBusy is true.
func (p *Pipeline) GetTransferBuffer() *[FrameBytes]byte {
	return &p.buffers[p.transfer]
}

// TransferBusy reports whether a DMA transfer is in flight.
func (p *Pipeline) TransferBusy() bool { return p.transferBusy }

// TransferComplete is called from the display DMA-completion ISR.
func (p *Pipeline) TransferComplete() {
	withMasked(func() {
		p.transferBusy = false
		p.FramesTransferred++
	})
}

// Indices returns the current render, ready, transfer slot assignment,
// for tests asserting the permutation invariant.
func (p *Pipeline) Indices() (render, ready, transfer int) {
	return p.render, p.ready, p.transfer
}
