package display

import "testing"

func assertPermutation(t *testing.T, p *Pipeline) {
	t.Helper()
	r, rd, tr := p.Indices()
	seen := map[int]bool{r: true, rd: true, tr: true}
	if len(seen) != 3 {
		t.Fatalf("indices not a permutation of {0,1,2}: render=%d ready=%d transfer=%d", r, rd, tr)
	}
}

func TestInitialPermutation(t *testing.T) {
	p := NewPipeline()
	assertPermutation(t, p)
	r, rd, tr := p.Indices()
	if r != 0 || rd != 2 || tr != 1 {
		t.Fatalf("initial indices = (%d,%d,%d), want (0,2,1)", r, rd, tr)
	}
}

func TestSwapAndTransferPreservePermutation(t *testing.T) {
	p := NewPipeline()
	for i := 0; i < 20; i++ {
		p.SwapBuffers()
		assertPermutation(t, p)
		if p.StartTransfer() {
			assertPermutation(t, p)
			p.TransferComplete()
			assertPermutation(t, p)
		}
	}
}

func TestFramesRenderedGEQTransferred(t *testing.T) {
	p := NewPipeline()
	for i := 0; i < 10; i++ {
		p.SwapBuffers()
		if p.FramesRendered < p.FramesTransferred {
			t.Fatalf("frames_rendered %d < frames_transferred %d", p.FramesRendered, p.FramesTransferred)
		}
		if p.StartTransfer() {
			p.TransferComplete()
		}
		if p.FramesRendered < p.FramesTransferred {
			t.Fatalf("frames_rendered %d < frames_transferred %d", p.FramesRendered, p.FramesTransferred)
		}
	}
}

// TestBackPressureDropsStaleFrame checks that two renders before any
// transfer starts leave only the second frame queued, and that
// FramesTransferred stays 0 until the ISR fires.
func TestBackPressureDropsStaleFrame(t *testing.T) {
	p := NewPipeline()
	*p.GetRenderBuffer() = [FrameBytes]byte{0: 'A'}
	p.SwapBuffers()
	*p.GetRenderBuffer() = [FrameBytes]byte{0: 'B'}
	p.SwapBuffers()

	if p.FramesRendered != 2 {
		t.Fatalf("FramesRendered = %d, want 2", p.FramesRendered)
	}
	if p.FramesTransferred != 0 {
		t.Fatalf("FramesTransferred = %d, want 0", p.FramesTransferred)
	}
	if !p.StartTransfer() {
		t.Fatal("StartTransfer() = false, want true")
	}
	if got := p.GetTransferBuffer()[0]; got != 'B' {
		t.Fatalf("transfer buffer = %q, want 'B' (A should have been dropped)", got)
	}
	p.TransferComplete()
	if p.FramesTransferred != 1 {
		t.Fatalf("FramesTransferred = %d, want 1", p.FramesTransferred)
	}
}

func TestStartTransferRejectsWhileBusy(t *testing.T) {
	p := NewPipeline()
	p.SwapBuffers()
	if !p.StartTransfer() {
		t.Fatal("first StartTransfer() = false")
	}
	p.SwapBuffers()
	if p.StartTransfer() {
		t.Fatal("StartTransfer() while busy = true, want false")
	}
}

func TestHasFrame(t *testing.T) {
	p := NewPipeline()
	if p.HasFrame() {
		t.Fatal("HasFrame() true before any render")
	}
	p.SwapBuffers()
	if !p.HasFrame() {
		t.Fatal("HasFrame() false after render")
	}
	p.StartTransfer()
	p.TransferComplete()
	if p.HasFrame() {
		t.Fatal("HasFrame() true after transfer completed")
	}
}
