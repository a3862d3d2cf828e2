package orchestrator

import (
	"encoding/binary"
	"testing"

	"github.com/dleathers/badapple/audio"
	"github.com/dleathers/badapple/sdblock"
)

type fakeDAC struct {
	started bool
	stopped bool
}

func (f *fakeDAC) StartCircular(left, right []uint16) error { f.started = true; return nil }
func (f *fakeDAC) Stop()                                     { f.stopped = true }

type fakeTransport struct {
	writes int
}

func (f *fakeTransport) WriteFrame(buf []byte) error {
	f.writes++
	return nil
}

type fakeClock struct{ now uint64 }

func (c *fakeClock) Micros() uint64 { c.now += 10; return c.now }

// buildMediaImage lays out a minimal one-cluster FAT32 volume holding a
// single contiguous BADAPPLE.BIN, with frameCount video frames and
// audioSamples stereo samples.
func buildMediaImage(t *testing.T, frameCount, audioSamples uint32) sdblock.BlockDevice {
	t.Helper()
	const (
		sectorsPerCluster = 32
		reserved          = 2
		numFATs           = 1
		sectorsPerFAT     = 64
		rootCluster       = 2
		fileCluster       = 3
	)
	audioSize := audioSamples * 4
	fileSize := uint32(20) + frameCount*1024 + audioSize
	clusterBytes := uint32(sectorsPerCluster * 512)
	clustersNeeded := (fileSize + clusterBytes - 1) / clusterBytes

	var dataStart uint32 = reserved + numFATs*sectorsPerFAT
	totalSectors := dataStart + (fileCluster+clustersNeeded+4)*sectorsPerCluster
	dev := sdblock.NewMock(int(totalSectors))

	vbr := dev.Data[0:512]
	binary.LittleEndian.PutUint16(vbr[11:], 512)
	vbr[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(vbr[14:], reserved)
	vbr[16] = numFATs
	binary.LittleEndian.PutUint32(vbr[36:], sectorsPerFAT)
	binary.LittleEndian.PutUint32(vbr[44:], rootCluster)
	vbr[510], vbr[511] = 0x55, 0xAA

	var fatStart uint32 = reserved
	putFAT := func(cluster, value uint32) {
		off := fatStart*512 + cluster*4
		binary.LittleEndian.PutUint32(dev.Data[off:], value)
	}
	putFAT(rootCluster, 0x0FFFFFFF)
	for c := uint32(0); c < clustersNeeded-1; c++ {
		putFAT(fileCluster+c, fileCluster+c+1)
	}
	putFAT(fileCluster+clustersNeeded-1, 0x0FFFFFFF)

	rootSector := (dataStart + (rootCluster-2)*sectorsPerCluster) * 512
	entry := dev.Data[rootSector : rootSector+32]
	copy(entry[0:11], "BADAPPLEBIN")
	binary.LittleEndian.PutUint16(entry[20:22], uint16(fileCluster>>16))
	binary.LittleEndian.PutUint16(entry[26:28], uint16(fileCluster))
	binary.LittleEndian.PutUint32(entry[28:32], fileSize)

	firstSector := (dataStart + (fileCluster-2)*sectorsPerCluster) * 512
	header := make([]byte, 20)
	binary.LittleEndian.PutUint32(header[0:4], frameCount)
	binary.LittleEndian.PutUint32(header[4:8], audioSize)
	binary.LittleEndian.PutUint32(header[8:12], 4096) // sample rate
	binary.LittleEndian.PutUint32(header[12:16], 2)
	binary.LittleEndian.PutUint32(header[16:20], 16)
	copy(dev.Data[firstSector:], header)

	videoStart := firstSector + 20
	for f := uint32(0); f < frameCount; f++ {
		frame := dev.Data[videoStart+f*1024 : videoStart+(f+1)*1024]
		for i := range frame {
			frame[i] = byte(f + 1) // nonzero so a blanked frame is detectable.
		}
	}

	audioStart := videoStart + frameCount*1024
	for i := uint32(0); i < audioSamples; i++ {
		binary.LittleEndian.PutUint16(dev.Data[audioStart+i*4:], 100)
		binary.LittleEndian.PutUint16(dev.Data[audioStart+i*4+2:], 200)
	}

	return dev
}

func TestPlayerBootAndStart(t *testing.T) {
	dev := buildMediaImage(t, 3, 4*audio.HalfSize)
	dac := &fakeDAC{}
	transport := &fakeTransport{}
	clock := &fakeClock{}
	cfg := DefaultConfig()

	p := New(cfg, dev, dac, transport, clock, NopUI{}, nil)
	if err := p.Boot(); err != nil {
		t.Fatalf("Boot() = %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !dac.started {
		t.Fatal("Start() did not arm the DAC driver")
	}
	if p.audioH.State() != audio.StatePlaying {
		t.Fatalf("audio state = %v, want playing", p.audioH.State())
	}
}

func TestPlayerBootMissingFile(t *testing.T) {
	dev := buildMediaImage(t, 1, audio.HalfSize)
	cfg := DefaultConfig()
	cfg.MediaFilename = "NOPE.BIN"
	p := New(cfg, dev, &fakeDAC{}, &fakeTransport{}, &fakeClock{}, NopUI{}, nil)
	if err := p.Boot(); err == nil {
		t.Fatal("Boot() with missing file should fail")
	}
}

// TestPlayerRunsToCompletion drives the loop by hand-simulating the
// audio ISR (the timer-driven DMA interrupts have no host
// equivalent), then calling Step until the synchronizer reports the
// whole file played.
func TestPlayerRunsToCompletion(t *testing.T) {
	const frameCount = 3
	dev := buildMediaImage(t, frameCount, 4*audio.HalfSize)
	dac := &fakeDAC{}
	transport := &fakeTransport{}
	clock := &fakeClock{}
	cfg := DefaultConfig()

	p := New(cfg, dev, dac, transport, clock, NopUI{}, nil)
	if err := p.Boot(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	done := false
	for i := 0; i < 1000 && !done; i++ {
		if i%2 == 0 {
			p.audioH.HalfComplete()
		} else {
			p.audioH.TransferComplete()
		}
		done = p.Step()
	}
	if !done {
		t.Fatal("playback never completed")
	}
	if transport.writes == 0 {
		t.Error("expected at least one display transfer")
	}
	if p.sync.VideoFramesRendered() == 0 {
		t.Error("expected at least one rendered frame")
	}
}

// TestHeartbeatTogglesOnAudioClock feeds the heartbeat a 32kHz sample
// count advancing one audio half-buffer at a time and expects four
// toggles per second of played audio, the 2Hz blink.
func TestHeartbeatTogglesOnAudioClock(t *testing.T) {
	hb := NewHeartbeat(32000 / 4)
	toggled := 0
	for samples := uint32(2048); samples <= 16*2048; samples += 2048 {
		if hb.Update(samples) {
			toggled++
		}
	}
	// 16 half-buffers = 32768 samples, crossing 8000/16000/24000/32000.
	if toggled != 4 {
		t.Fatalf("toggled %d times over 32768 samples, want 4", toggled)
	}
}

// TestHeartbeatCatchUp jumps the sample count across several toggle
// periods in one call: On must flip once per crossed period so the
// blink phase stays locked to the audio clock.
func TestHeartbeatCatchUp(t *testing.T) {
	hb := NewHeartbeat(8000)
	if !hb.Update(32768) {
		t.Fatal("Update across four periods reported no toggle")
	}
	if hb.On {
		t.Fatal("On after an even number of crossed periods, want off")
	}
	if hb.Update(32768) {
		t.Fatal("second Update with unchanged sample count toggled again")
	}
}

// TestPlayerDegradesOnVideoReadFault drops a few video-data sectors and
// checks the read failures degrade to blanked frames instead of
// stopping playback: the loop still runs to completion and audio
// refills keep landing.
func TestPlayerDegradesOnVideoReadFault(t *testing.T) {
	dev := buildMediaImage(t, 3, 4*audio.HalfSize)

	// Geometry from buildMediaImage: data area starts after 2 reserved
	// sectors and one 64-sector FAT; the file starts at cluster 3, with
	// 32 sectors per cluster. Sectors 2..4 of the file hold all of video
	// frame 1 and the first sector of frame 2.
	firstLBA := uint32(2+64) + (3-2)*32
	flaky := &sdblock.Flaky{BlockDevice: dev, Faults: map[uint32]sdblock.Result{
		firstLBA + 2: sdblock.ResultTimeout,
		firstLBA + 3: sdblock.ResultTimeout,
		firstLBA + 4: sdblock.ResultTimeout,
	}}

	p := New(DefaultConfig(), flaky, &fakeDAC{}, &fakeTransport{}, &fakeClock{}, NopUI{}, nil)
	if err := p.Boot(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	done := false
	for i := 0; i < 1000 && !done; i++ {
		if i%2 == 0 {
			p.audioH.HalfComplete()
		} else {
			p.audioH.TransferComplete()
		}
		done = p.Step()
	}
	if !done {
		t.Fatal("playback did not complete despite degraded video reads")
	}
	if p.audioH.Stats.RefillCount == 0 {
		t.Error("expected audio refills to continue through video faults")
	}
}
