//go:build tinygo

/*
Command badapple is the firmware entry point: it wires the hal package's
hardware drivers into an orchestrator.Player and runs it to completion,
blinking the status LED fast forever if boot fails.
*/
package main

import (
	"log/slog"
	"machine"
	"time"

	"github.com/dleathers/badapple/hal"
	"github.com/dleathers/badapple/orchestrator"
	"github.com/dleathers/badapple/perf"
)

const (
	sdCSPin       = machine.GP5
	i2cSDAPin     = machine.GP6
	i2cSCLPin     = machine.GP7
	audioLeftPin  = machine.GP2
	audioRightPin = machine.GP3
	statusLEDPin  = machine.LED

	fatalBlinkPeriod = 100 * time.Millisecond
)

func main() {
	log := slog.Default()
	led := hal.NewStatusLED(statusLEDPin)

	sd := hal.NewSPIBlockDevice(machine.SPI0, sdCSPin)
	if err := sd.SetBringUpSpeed(); err != nil {
		log.Error("badapple: spi bring-up speed", slog.String("err", err.Error()))
		led.BlinkForever(fatalBlinkPeriod)
	}
	if err := sd.Configure(); err != nil {
		log.Error("badapple: sd card init", slog.String("err", err.Error()))
		led.BlinkForever(fatalBlinkPeriod)
	}

	machine.I2C0.Configure(machine.I2CConfig{SDA: i2cSDAPin, SCL: i2cSCLPin})
	transport := hal.NewSSD1306Transport(machine.I2C0)

	dac, err := hal.NewTimerDAC(&machine.Timer{}, audioLeftPin, audioRightPin, machine.PWM0, machine.PWM1)
	if err != nil {
		log.Error("badapple: dac init", slog.String("err", err.Error()))
		led.BlinkForever(fatalBlinkPeriod)
	}

	cfg := orchestrator.DefaultConfig()
	ui := hal.NewLogUI(log)
	player := orchestrator.New(cfg, sd, dac, transport, perf.NewHardwareClock(), ui, log)
	dac.SetHandle(player.AudioHandle())
	transport.SetOnDone(player.DisplayPipeline().TransferComplete)
	player.SetStatusLED(led)

	if err := player.Boot(); err != nil {
		led.BlinkForever(fatalBlinkPeriod)
	}
	if err := sd.SetOperatingSpeed(); err != nil {
		log.Warn("badapple: could not raise sd clock", slog.String("err", err.Error()))
	}
	hal.SetSampleRate(player.MediaSampleRate())
	if err := player.Start(); err != nil {
		led.BlinkForever(fatalBlinkPeriod)
	}

	player.Run()
}
