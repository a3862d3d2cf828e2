package perf

import "testing"

type fakeClock struct{ now uint64 }

func (c *fakeClock) Micros() uint64 { return c.now }

func TestTrackerRecordsMax(t *testing.T) {
	clock := &fakeClock{}
	tr := NewTracker(clock)

	clock.now = 0
	start := tr.Start()
	clock.now = 50
	tr.Stop(start)
	if tr.MaxMicros != 50 {
		t.Fatalf("MaxMicros = %d, want 50", tr.MaxMicros)
	}

	clock.now = 60
	start = tr.Start()
	clock.now = 70
	tr.Stop(start)
	if tr.MaxMicros != 50 {
		t.Fatalf("MaxMicros = %d, want 50 (shorter interval shouldn't lower max)", tr.MaxMicros)
	}

	clock.now = 100
	start = tr.Start()
	clock.now = 300
	tr.Stop(start)
	if tr.MaxMicros != 200 {
		t.Fatalf("MaxMicros = %d, want 200", tr.MaxMicros)
	}
}

func TestTrackerReset(t *testing.T) {
	clock := &fakeClock{}
	tr := NewTracker(clock)
	start := tr.Start()
	clock.now = 500
	tr.Stop(start)
	tr.Reset()
	if tr.MaxMicros != 0 {
		t.Fatalf("MaxMicros after Reset = %d, want 0", tr.MaxMicros)
	}
}
