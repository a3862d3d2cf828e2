//go:build tinygo

package hal

import (
	"machine"

	"tinygo.org/x/drivers/ssd1306"

	coredisplay "github.com/dleathers/badapple/display"
)

// SSD1306Transport adapts tinygo.org/x/drivers/ssd1306 to
// display.Transport. The driver's I2C write is synchronous, so
// WriteFrame reports completion to the pipeline itself immediately
// after the write returns rather than from a separate completion ISR.
type SSD1306Transport struct {
	dev    ssd1306.Device
	onDone func()
}

// NewSSD1306Transport wires an SSD1306 over the given I2C bus. Call
// SetOnDone with the owning display.Pipeline's TransferComplete once
// it's constructed — the transport has to exist before
// orchestrator.New can build the Player around it, but the pipeline it
// reports completion to only exists after.
func NewSSD1306Transport(bus machine.I2C) *SSD1306Transport {
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Width:    128,
		Height:   64,
		Address:  ssd1306.Address_128_64,
		VccState: ssd1306.SWITCHCAPVCC,
	})
	return &SSD1306Transport{dev: dev}
}

// SetOnDone attaches the completion callback WriteFrame invokes after
// each synchronous transfer.
func (t *SSD1306Transport) SetOnDone(onDone func()) { t.onDone = onDone }

func (t *SSD1306Transport) WriteFrame(buf []byte) error {
	if len(buf) != coredisplay.FrameBytes {
		return errNotConfigured
	}
	if err := t.dev.SetBuffer(buf); err != nil {
		return err
	}
	err := t.dev.Display()
	if t.onDone != nil {
		t.onDone()
	}
	return err
}
