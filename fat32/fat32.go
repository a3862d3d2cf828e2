/*
Package fat32 implements the read-only subset of FAT32 this player needs:
mounting a volume behind an optional MBR partition table, resolving a
short 8.3 filename in the root directory, and walking cluster chains.
There is no long-filename support and no write path — the player never
writes to the card, and the fast contiguous-read path in package
mediafile depends on the FAT never changing underfoot.
*/
package fat32

import (
	"encoding/binary"
	"io"
	"log/slog"
	"strconv"

	"golang.org/x/text/encoding/charmap"

	"github.com/dleathers/badapple/internal/mbr"
	"github.com/dleathers/badapple/sdblock"
)

// Result is the closed return-code enum for every fat32 operation, kept
// comparable and allocation-free so ISR-adjacent callers (the media
// reader's fast path runs between audio refills) never pay for an error
// wrapper.
type Result int

const (
	ResultOK Result = iota
	ResultInvalidParam
	ResultRead
	ResultError
	ResultNotFound
)

func (r Result) Error() string {
	switch r {
	case ResultOK:
		return "fat32: ok"
	case ResultInvalidParam:
		return "fat32: invalid parameter"
	case ResultRead:
		return "fat32: read error"
	case ResultError:
		return "fat32: volume error"
	case ResultNotFound:
		return "fat32: not found"
	default:
		return "fat32: result(" + strconv.Itoa(int(r)) + ")"
	}
}

const (
	sectorSize     = 512
	dirEntrySize   = 32
	entriesPerSect = sectorSize / dirEntrySize

	// attrLongName marks a directory entry as a long-filename fragment
	// (FAT_ATTR_LONG_NAME = READ_ONLY|HIDDEN|SYSTEM|VOLUME_ID); such
	// entries are skipped since there is no LFN support.
	attrLongNameMask = 0x0F
	attrLongName     = 0x0F

	entryFree    = 0x00
	entryDeleted = 0xE5

	// clusterEOCMin is the lowest FAT32 cluster value meaning end-of-chain.
	clusterEOCMin  = 0x0FFFFFF8
	clusterMask28  = 0x0FFFFFFF
	firstDataClust = 2
)

// BPB field offsets within the boot sector, per the FAT32 specification.
const (
	bpbBytesPerSector    = 11
	bpbSectorsPerCluster = 13
	bpbReservedSectors   = 14
	bpbNumFATs           = 16
	bpbTotalSectors32    = 32
	bpbSectorsPerFAT32   = 36
	bpbRootCluster       = 44

	bootSignatureOffset = 510
	bootSignature       = 0xAA55
)

// Volume is a mounted FAT32 volume's geometry plus the scratch sector
// buffer shared by every read issued through it. The scratch buffer is
// only ever touched from the foreground loop, never from an ISR, so no
// synchronization is needed around it.
type Volume struct {
	device sdblock.BlockDevice
	log    *slog.Logger

	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT     uint32
	RootCluster       uint32
	PartitionLBA      uint32
	FATStartSector    uint32
	DataStartSector   uint32
	Mounted           bool

	scratch [sectorSize]byte
}

// FileInfo is the transient result of a directory lookup, returned by
// value since nothing in this package keeps a handle to an open file.
type FileInfo struct {
	FirstCluster uint32
	Size         uint32
	Attributes   uint8
}

// NewVolume prepares a Volume over dev. Call Mount before using it.
func NewVolume(dev sdblock.BlockDevice, log *slog.Logger) *Volume {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Volume{device: dev, log: log}
}

// Mount reads the MBR (if present) and the FAT32 boot sector, validating
// the BPB fields the mount procedure depends on.
func (v *Volume) Mount() Result {
	v.Mounted = false
	if res := v.readBlock(0, &v.scratch); res != ResultOK {
		return res
	}
	bs, err := mbr.ToBootSector(v.scratch[:])
	if err != nil {
		return ResultError
	}
	if bs.BootSignature() != bootSignature {
		v.log.Warn("fat32: mbr missing boot signature")
		return ResultError
	}

	partitionLBA := bs.FirstPartitionLBA()
	vbrLBA := partitionLBA // 0 means "super-floppy": VBR lives at LBA 0.

	if vbrLBA != 0 {
		if res := v.readBlock(vbrLBA, &v.scratch); res != ResultOK {
			return res
		}
	}
	if binary.LittleEndian.Uint16(v.scratch[bootSignatureOffset:]) != bootSignature {
		v.log.Warn("fat32: vbr missing boot signature")
		return ResultError
	}

	bytesPerSector := binary.LittleEndian.Uint16(v.scratch[bpbBytesPerSector:])
	sectorsPerCluster := v.scratch[bpbSectorsPerCluster]
	reservedSectors := binary.LittleEndian.Uint16(v.scratch[bpbReservedSectors:])
	numFATs := v.scratch[bpbNumFATs]
	sectorsPerFAT := binary.LittleEndian.Uint32(v.scratch[bpbSectorsPerFAT32:])
	rootCluster := binary.LittleEndian.Uint32(v.scratch[bpbRootCluster:])

	if bytesPerSector != sectorSize {
		v.log.Error("fat32: unsupported sector size", slog.Int("bytesPerSector", int(bytesPerSector)))
		return ResultError
	}
	if sectorsPerCluster == 0 || numFATs == 0 {
		v.log.Error("fat32: invalid bpb", slog.Int("sectorsPerCluster", int(sectorsPerCluster)), slog.Int("numFATs", int(numFATs)))
		return ResultError
	}

	v.BytesPerSector = bytesPerSector
	v.SectorsPerCluster = sectorsPerCluster
	v.ReservedSectors = reservedSectors
	v.NumFATs = numFATs
	v.SectorsPerFAT = sectorsPerFAT
	v.RootCluster = rootCluster
	v.PartitionLBA = partitionLBA
	v.FATStartSector = partitionLBA + uint32(reservedSectors)
	v.DataStartSector = v.FATStartSector + uint32(numFATs)*sectorsPerFAT
	v.Mounted = true

	v.log.Info("fat32: mounted",
		slog.Uint64("rootCluster", uint64(rootCluster)),
		slog.Uint64("dataStart", uint64(v.DataStartSector)))
	return ResultOK
}

// ClusterSizeBytes returns the volume's cluster size in bytes.
func (v *Volume) ClusterSizeBytes() uint32 {
	return uint32(v.SectorsPerCluster) * sectorSize
}

// ClusterToSector returns the physical sector of cluster c's first
// sector, or 0 if c is not a valid data cluster (c < 2).
func (v *Volume) ClusterToSector(c uint32) uint32 {
	if c < firstDataClust {
		return 0
	}
	return v.DataStartSector + (c-firstDataClust)*uint32(v.SectorsPerCluster)
}

// NextCluster follows the FAT chain entry for cluster c. eoc is true
// when c is the last cluster in its chain.
func (v *Volume) NextCluster(c uint32) (next uint32, eoc bool, res Result) {
	fatByteOffset := c * 4
	fatSector := v.FATStartSector + fatByteOffset/sectorSize
	sectorOffset := fatByteOffset % sectorSize

	if res := v.readBlock(fatSector, &v.scratch); res != ResultOK {
		return 0, false, res
	}
	val := binary.LittleEndian.Uint32(v.scratch[sectorOffset:]) & clusterMask28
	if val >= clusterEOCMin || val < firstDataClust {
		return 0, true, ResultOK
	}
	return val, false, ResultOK
}

// Find resolves name (rendered to 8.3 form) in the root directory.
func (v *Volume) Find(name string) (FileInfo, Result) {
	query, err := ConvertFilename(name)
	if err != nil {
		return FileInfo{}, ResultInvalidParam
	}

	cluster := v.RootCluster
	for {
		sector := v.ClusterToSector(cluster)
		for s := uint8(0); s < v.SectorsPerCluster; s++ {
			if res := v.readBlock(sector+uint32(s), &v.scratch); res != ResultOK {
				return FileInfo{}, res
			}
			for e := 0; e < entriesPerSect; e++ {
				entry := v.scratch[e*dirEntrySize : (e+1)*dirEntrySize]
				switch entry[0] {
				case entryFree:
					return FileInfo{}, ResultNotFound
				case entryDeleted:
					continue
				}
				if entry[11]&attrLongNameMask == attrLongName {
					continue
				}
				if [11]byte(entry[:11]) != query {
					continue
				}
				hi := binary.LittleEndian.Uint16(entry[20:22])
				lo := binary.LittleEndian.Uint16(entry[26:28])
				return FileInfo{
					FirstCluster: uint32(hi)<<16 | uint32(lo),
					Size:         binary.LittleEndian.Uint32(entry[28:32]),
					Attributes:   entry[11],
				}, ResultOK
			}
		}
		next, eoc, res := v.NextCluster(cluster)
		if res != ResultOK {
			return FileInfo{}, res
		}
		if eoc {
			return FileInfo{}, ResultNotFound
		}
		cluster = next
	}
}

// ConvertFilename renders name into the 11-byte space-padded 8.3 form
// FAT directory entries store: uppercase, name chars before the first
// '.' (up to 8, space-padded), then up to 3 extension chars (space
// padded), with no dot. Bytes outside ASCII are transcoded through IBM
// code page 437, matching the OEM encoding FAT short names use.
func ConvertFilename(name string) ([11]byte, error) {
	enc, err := charmap.CodePage437.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return [11]byte{}, err
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	dot := -1
	for i, b := range enc {
		if b == '.' {
			dot = i
			break
		}
	}
	base := enc
	var ext []byte
	if dot >= 0 {
		base = enc[:dot]
		ext = enc[dot+1:]
	}
	for i := 0; i < len(base) && i < 8; i++ {
		out[i] = toUpperASCII(base[i])
	}
	for i := 0; i < len(ext) && i < 3; i++ {
		out[8+i] = toUpperASCII(ext[i])
	}
	return out, nil
}

func toUpperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// readBlock is a thin wrapper turning sdblock.Result into fat32.Result.
func (v *Volume) readBlock(lba uint32, dst *[sectorSize]byte) Result {
	switch v.device.ReadBlock(lba, dst) {
	case sdblock.ResultOK:
		return ResultOK
	case sdblock.ResultNoCard:
		return ResultError
	default:
		v.log.Warn("fat32: block read failed", slog.Uint64("lba", uint64(lba)))
		return ResultRead
	}
}

// Device exposes the underlying block device to package mediafile, which
// issues its own multi-block and single-block reads against the same
// device outside the directory/FAT bookkeeping this package owns.
func (v *Volume) Device() sdblock.BlockDevice { return v.device }
