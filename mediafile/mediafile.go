/*
Package mediafile turns a FAT32 file location into positional reads over
the interleaved video/audio media format: a 20-byte header, a run of
1024-byte video frames, and an interleaved 16-bit stereo PCM stream.
It detects whether the file's cluster chain is contiguous on the volume
to unlock a multi-block fast path, and otherwise falls back to walking
the FAT with a forward-only cache for sequential access.
*/
package mediafile

import (
	"encoding/binary"
	"io"
	"log/slog"
	"strconv"

	"github.com/dleathers/badapple/fat32"
	"github.com/dleathers/badapple/internal/barrier"
	"github.com/dleathers/badapple/sdblock"
)

// Result mirrors fat32.Result's closed-enum style for this layer's own
// failure modes.
type Result int

const (
	ResultOK Result = iota
	ResultInvalidParam
	ResultRead
	// ResultCorrupt is returned by contiguity detection when the safety
	// bound on cluster-chain length is exceeded without reaching
	// end-of-chain — decided to surface this
	// distinctly from "merely fragmented".
	ResultCorrupt
)

func (r Result) Error() string {
	switch r {
	case ResultOK:
		return "mediafile: ok"
	case ResultInvalidParam:
		return "mediafile: invalid parameter"
	case ResultRead:
		return "mediafile: read error"
	case ResultCorrupt:
		return "mediafile: corrupt cluster chain"
	default:
		return "mediafile: result(" + strconv.Itoa(int(r)) + ")"
	}
}

const (
	headerSize = 20
	frameBytes = 1024

	// maxMultiblock bounds a single contiguous-path transfer to 16
	// blocks (8 KiB), so a block-device call never masks the audio ISR
	// for more than a few milliseconds on a 10 MHz SPI bus.
	maxMultiblock = 16
	sectorSize    = 512

	// dacSilence is the 12-bit DAC midpoint, 0 volts relative to mid-rail.
	dacSilence = 0x800

	// bytesPerStereoSample is 2 channels x 16-bit little-endian samples.
	bytesPerStereoSample = 4

	// contiguitySlack is the safety margin added to the expected cluster
	// count before the walker gives up and reports corruption instead of
	// spinning on a malformed FAT.
	contiguitySlack = 10

	// AudioHalfSize is N, the half-buffer sample count
	// ReadAudio is normally called with.
	AudioHalfSize = 2048
)

// Header is the file's first 20 bytes, five little-endian u32 fields.
type Header struct {
	FrameCount    uint32
	AudioSize     uint32
	SampleRate    uint32
	Channels      uint32
	BitsPerSample uint32
}

// Reader positions reads over one open media file. It owns no buffers
// shared with an ISR; the caller's output slices are.
type Reader struct {
	vol *fat32.Volume
	log *slog.Logger

	firstCluster uint32
	fileSize     uint32

	Header      Header
	VideoOffset uint32
	AudioOffset uint32

	CurrentFrame  uint32
	currentSample uint32

	volumePercent uint8

	cachedCluster      uint32
	cachedClusterIndex uint32

	IsContiguous bool
	firstSector  uint32

	scratch      [sectorSize]byte
	audioScratch [AudioHalfSize * bytesPerStereoSample]byte
}

// Open parses the header and runs contiguity detection for the file
// described by info, as located by a prior fat32.Volume.Find. A corrupt
// cluster chain (detectContiguity exceeding its safety bound) fails the
// open with ResultCorrupt rather than silently falling back to the
// walked-chain path.
func Open(vol *fat32.Volume, info fat32.FileInfo, log *slog.Logger) (*Reader, Result) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Reader{
		vol:           vol,
		log:           log,
		firstCluster:  info.FirstCluster,
		fileSize:      info.Size,
		volumePercent: 100,
	}
	if res := r.parseHeader(); res != ResultOK {
		return nil, res
	}
	if res := r.detectContiguity(); res != ResultOK {
		return nil, res
	}
	return r, ResultOK
}

func (r *Reader) parseHeader() Result {
	sector := r.vol.ClusterToSector(r.firstCluster)
	if sector == 0 {
		return ResultInvalidParam
	}
	var buf [sectorSize]byte
	if r.vol.Device().ReadBlock(sector, &buf) != sdblock.ResultOK {
		return ResultRead
	}
	r.Header = Header{
		FrameCount:    binary.LittleEndian.Uint32(buf[0:4]),
		AudioSize:     binary.LittleEndian.Uint32(buf[4:8]),
		SampleRate:    binary.LittleEndian.Uint32(buf[8:12]),
		Channels:      binary.LittleEndian.Uint32(buf[12:16]),
		BitsPerSample: binary.LittleEndian.Uint32(buf[16:20]),
	}
	r.VideoOffset = headerSize
	r.AudioOffset = headerSize + r.Header.FrameCount*frameBytes
	return ResultOK
}

// detectContiguity walks the cluster chain checking that every cluster
// is exactly one past its predecessor. On success it records the fast
// path's starting sector and seeds the forward cache.
func (r *Reader) detectContiguity() Result {
	clusterSize := r.vol.ClusterSizeBytes()
	expected := (r.fileSize + clusterSize - 1) / clusterSize

	prev := r.firstCluster
	count := uint32(1)
	for {
		next, eoc, res := r.vol.NextCluster(prev)
		if res != fat32.ResultOK {
			return ResultRead
		}
		if eoc {
			r.IsContiguous = true
			r.firstSector = r.vol.ClusterToSector(r.firstCluster)
			r.cachedCluster = r.firstCluster
			r.cachedClusterIndex = 0
			return ResultOK
		}
		if next != prev+1 {
			r.IsContiguous = false
			return ResultOK
		}
		prev = next
		count++
		if count > expected+contiguitySlack {
			r.IsContiguous = false
			r.log.Warn("mediafile: cluster chain exceeded safety bound", slog.Uint64("count", uint64(count)))
			return ResultCorrupt
		}
	}
}

// SetVolume sets audio playback volume as an integer percent, clamped to
// [0,100] so the downstream 16-to-12-bit conversion cannot overflow its
// intended range.
func (r *Reader) SetVolume(percent int) {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	r.volumePercent = uint8(percent)
}

// ReadFrameAt reads video frame index into buf, which must be exactly
// 1024 bytes. A read failure degrades to a blanked frame rather than
// propagating, following a graceful-degradation policy.
func (r *Reader) ReadFrameAt(index uint32, buf *[frameBytes]byte) Result {
	if index >= r.Header.FrameCount {
		return ResultInvalidParam
	}
	off := r.VideoOffset + index*frameBytes
	if res := r.readAt(off, buf[:]); res != ResultOK {
		for i := range buf {
			buf[i] = 0
		}
		return ResultRead
	}
	return ResultOK
}

// ReadAudio fills left and right (equal length, stereo, 12-bit DAC
// values) with the next len(left) samples starting at the reader's
// current playback position, applying volume scaling. Past end of
// audio it fills both with silence and returns OK; on a read error it
// does the same but returns ResultRead.
func (r *Reader) ReadAudio(left, right []uint16) Result {
	n := len(left)
	if n != len(right) {
		return ResultInvalidParam
	}
	totalSamples := r.Header.AudioSize / bytesPerStereoSample
	if r.currentSample >= totalSamples {
		fillSilence(left)
		fillSilence(right)
		return ResultOK
	}

	toRead := uint32(n)
	if remaining := totalSamples - r.currentSample; toRead > remaining {
		toRead = remaining
	}
	if toRead == 0 {
		return ResultOK
	}

	byteLen := toRead * bytesPerStereoSample
	off := r.AudioOffset + r.currentSample*bytesPerStereoSample
	if res := r.readAt(off, r.audioScratch[:byteLen]); res != ResultOK {
		fillSilence(left)
		fillSilence(right)
		return ResultRead
	}

	vol := int32(r.volumePercent)
	for i := uint32(0); i < toRead; i++ {
		l := int16(binary.LittleEndian.Uint16(r.audioScratch[i*4:]))
		rr := int16(binary.LittleEndian.Uint16(r.audioScratch[i*4+2:]))
		left[i] = scaleAndConvert(l, vol)
		right[i] = scaleAndConvert(rr, vol)
	}
	r.currentSample += toRead
	fillSilence(left[toRead:])
	fillSilence(right[toRead:])

	barrier.DataMemoryBarrier()
	return ResultOK
}

// scaleAndConvert applies integer volume scaling to a signed 16-bit PCM
// sample and converts it to a 12-bit unsigned DAC value. For vol in
// [0,100] the shifted value already lies in [0,4095] (raw=-32768 maps to
// 0, raw=32767 to 4095); a larger vol is saturated to that range instead
// of being allowed to wrap.
func scaleAndConvert(raw int16, vol int32) uint16 {
	scaled := int32(raw) * vol / 100
	shifted := (scaled + 32768) >> 4
	switch {
	case shifted < 0:
		return 0
	case shifted > 4095:
		return 4095
	default:
		return uint16(shifted)
	}
}

func fillSilence(s []uint16) {
	for i := range s {
		s[i] = dacSilence
	}
}

// readAt dispatches to the contiguous or fragmented read path depending
// on whether contiguity detection succeeded for this file.
func (r *Reader) readAt(off uint32, dst []byte) Result {
	if off >= r.fileSize {
		return ResultOK
	}
	if r.IsContiguous {
		return r.readContiguous(off, dst)
	}
	return r.readFragmented(off, dst)
}

func (r *Reader) readContiguous(off uint32, dst []byte) Result {
	pos := off
	for len(dst) > 0 && pos < r.fileSize {
		sector := r.firstSector + pos/sectorSize
		so := pos % sectorSize
		remaining := uint32(len(dst))

		if so != 0 || remaining < sectorSize {
			if r.vol.Device().ReadBlock(sector, &r.scratch) != sdblock.ResultOK {
				return ResultRead
			}
			take := minU32(sectorSize-so, remaining, r.fileSize-pos)
			copy(dst[:take], r.scratch[so:so+take])
			dst = dst[take:]
			pos += take
			continue
		}

		maxBlocksLeft := (r.fileSize - pos) / sectorSize
		k := remaining / sectorSize
		if k > maxBlocksLeft {
			k = maxBlocksLeft
		}
		if k > maxMultiblock {
			k = maxMultiblock
		}
		if k >= 2 {
			if r.vol.Device().ReadBlocks(sector, dst[:k*sectorSize]) != sdblock.ResultOK {
				return ResultRead
			}
			dst = dst[k*sectorSize:]
			pos += k * sectorSize
			continue
		}

		if r.vol.Device().ReadBlock(sector, &r.scratch) != sdblock.ResultOK {
			return ResultRead
		}
		take := minU32(sectorSize, remaining, r.fileSize-pos)
		copy(dst[:take], r.scratch[:take])
		dst = dst[take:]
		pos += take
	}
	return ResultOK
}

func (r *Reader) readFragmented(off uint32, dst []byte) Result {
	clusterSize := r.vol.ClusterSizeBytes()
	pos := off
	for len(dst) > 0 && pos < r.fileSize {
		targetIndex := pos / clusterSize
		cluster, res := r.resolveCluster(targetIndex)
		if res != ResultOK {
			return res
		}
		sector := r.vol.ClusterToSector(cluster) + (pos%clusterSize)/sectorSize
		so := pos % sectorSize

		if r.vol.Device().ReadBlock(sector, &r.scratch) != sdblock.ResultOK {
			return ResultRead
		}
		take := minU32(sectorSize-so, uint32(len(dst)), r.fileSize-pos)
		copy(dst[:take], r.scratch[so:so+take])
		dst = dst[take:]
		pos += take
	}
	return ResultOK
}

// resolveCluster walks the FAT chain to the cluster containing
// byte-cluster index targetIndex, starting from the forward cache when
// possible — sequential reads (the common case) never restart from the
// first cluster.
func (r *Reader) resolveCluster(targetIndex uint32) (uint32, Result) {
	cluster := r.firstCluster
	idx := uint32(0)
	if r.cachedCluster != 0 && r.cachedClusterIndex <= targetIndex {
		cluster = r.cachedCluster
		idx = r.cachedClusterIndex
	}
	for idx < targetIndex {
		next, eoc, res := r.vol.NextCluster(cluster)
		if res != fat32.ResultOK {
			return 0, ResultRead
		}
		if eoc {
			return 0, ResultInvalidParam
		}
		cluster = next
		idx++
	}
	r.cachedCluster = cluster
	r.cachedClusterIndex = idx
	return cluster, ResultOK
}

func minU32(a, b, c uint32) uint32 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
