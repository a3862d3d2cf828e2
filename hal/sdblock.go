//go:build tinygo

package hal

import (
	"machine"

	"tinygo.org/x/drivers/sdcard"

	"github.com/dleathers/badapple/sdblock"
)

// Bring-up and operating SPI clock rates for the card: cards must be
// addressed below 400kHz until CMD8/ACMD41 complete, then can run at
// whatever rate the bus and card support.
const (
	bringUpHz   = 312500
	operatingHz = 10_000_000
)

// SPIBlockDevice adapts tinygo.org/x/drivers/sdcard's SPICard to
// sdblock.BlockDevice, and exposes the slow-enumeration/fast-transfer
// speed ramp the mount sequence performs.
type SPIBlockDevice struct {
	spi  machine.SPI
	cs   machine.Pin
	card sdcard.Card
}

// NewSPIBlockDevice wires an SD card behind cs on spi. Call
// SetBringUpSpeed, then Configure, before the first Mount attempt.
func NewSPIBlockDevice(spi machine.SPI, cs machine.Pin) *SPIBlockDevice {
	d := &SPIBlockDevice{spi: spi, cs: cs}
	d.card = sdcard.New(spi, cs)
	return d
}

// SetBringUpSpeed reconfigures the SPI bus to the slow clock rate the
// card's initialization sequence requires.
func (d *SPIBlockDevice) SetBringUpSpeed() error {
	return d.spi.Configure(machine.SPIConfig{Frequency: bringUpHz})
}

// SetOperatingSpeed switches the bus to full speed once the card reports
// it has left idle state. cmd/badapple calls this right after a
// successful orchestrator.Player.Boot.
func (d *SPIBlockDevice) SetOperatingSpeed() error {
	return d.spi.Configure(machine.SPIConfig{Frequency: operatingHz})
}

// Configure brings the card out of reset and through CMD0/CMD8/ACMD41 at
// the bring-up speed already set.
func (d *SPIBlockDevice) Configure() error {
	return d.card.Configure()
}

func (d *SPIBlockDevice) ReadBlock(lba uint32, dst *[sdblock.BlockSize]byte) sdblock.Result {
	_, err := d.card.ReadAt(dst[:], int64(lba)*sdblock.BlockSize)
	return toResult(err)
}

func (d *SPIBlockDevice) ReadBlocks(startLBA uint32, dst []byte) sdblock.Result {
	_, err := d.card.ReadAt(dst, int64(startLBA)*sdblock.BlockSize)
	return toResult(err)
}

// toResult collapses the driver's error space to sdblock's closed enum.
// The driver doesn't distinguish "no card" from other I/O failures at
// this call depth, so every non-nil error reads as ResultError and this
// adapter never returns ResultNoCard or ResultTimeout.
func toResult(err error) sdblock.Result {
	if err == nil {
		return sdblock.ResultOK
	}
	return sdblock.ResultError
}
