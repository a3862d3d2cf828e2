package fat32_test

import (
	"encoding/binary"
	"fmt"

	"github.com/dleathers/badapple/fat32"
	"github.com/dleathers/badapple/sdblock"
)

func ExampleVolume_basic_usage() {
	// device could be an SD card or anything else implementing
	// sdblock.BlockDevice. Here a super-floppy FAT32 image is laid out
	// by hand: no MBR, boot sector at LBA 0.
	device := sdblock.NewMock(256)
	vbr := device.Data[:512]
	binary.LittleEndian.PutUint16(vbr[11:], 512) // bytes per sector
	vbr[13] = 8                                  // sectors per cluster
	binary.LittleEndian.PutUint16(vbr[14:], 2)   // reserved sectors
	vbr[16] = 1                                  // number of FATs
	binary.LittleEndian.PutUint32(vbr[36:], 16)  // sectors per FAT
	binary.LittleEndian.PutUint32(vbr[44:], 2)   // root cluster
	vbr[510], vbr[511] = 0x55, 0xAA

	// One root directory entry: PLAYME.BIN at cluster 3, 1234 bytes.
	rootSector := uint32(2 + 16) // reserved + FAT
	entry := device.Data[rootSector*512 : rootSector*512+32]
	copy(entry[:11], "PLAYME  BIN")
	binary.LittleEndian.PutUint16(entry[26:28], 3)
	binary.LittleEndian.PutUint32(entry[28:32], 1234)

	vol := fat32.NewVolume(device, nil)
	if res := vol.Mount(); res != fat32.ResultOK {
		panic(res)
	}
	info, res := vol.Find("PLAYME.BIN")
	if res != fat32.ResultOK {
		panic(res)
	}
	fmt.Println(info.FirstCluster, info.Size)
	// Output:
	// 3 1234
}
