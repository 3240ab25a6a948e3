//go:build tinygo && baremetal

package hal

import (
	"fmt"
	"machine"
	"time"

	"tinygo.org/x/drivers/sdcard"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	gpio   GPIO
	t      *tinyGoTime
	spi    *machine.SPI
	sd     BlockDevice
}

// New returns a Pico (RP2040/RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// SPI1 on GP10 (SCK) / GP11 (SDO) / GP12 (SDI) is free for peripherals.
// The SD card sits on SPI0: GP18 (SCK) / GP19 (SDO) / GP16 (SDI) / GP17 (CS).
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})
	logger := &uartLogger{uart: uart}

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led := &pinLED{pin: ledPin}

	pins := []GPIOPin{newLEDPin("LED", led)}
	for i, p := range []machine.Pin{machine.GP2, machine.GP3, machine.GP4, machine.GP5, machine.GP6, machine.GP7, machine.GP8} {
		pins = append(pins, newMachinePin(fmt.Sprintf("GPIO%d", i+1), p))
	}

	spi := machine.SPI1
	if err := spi.Configure(machine.SPIConfig{
		Frequency: 4_000_000,
		SCK:       machine.GP10,
		SDO:       machine.GP11,
		SDI:       machine.GP12,
	}); err != nil {
		logger.WriteLineString("hal: spi1: " + err.Error())
	}

	h := &tinyGoHAL{
		logger: logger,
		led:    led,
		gpio:   newVirtualGPIO(pins),
		t:      newTinyGoTime(time.Millisecond),
		spi:    spi,
	}

	sd := sdcard.New(machine.SPI0, machine.GP18, machine.GP19, machine.GP16, machine.GP17)
	if err := sd.Configure(); err != nil {
		logger.WriteLineString("hal: sd: " + err.Error())
	} else {
		h.sd = &sd
	}
	return h
}

func (h *tinyGoHAL) Logger() Logger       { return h.logger }
func (h *tinyGoHAL) LED() LED             { return h.led }
func (h *tinyGoHAL) GPIO() GPIO           { return h.gpio }
func (h *tinyGoHAL) Time() Time           { return h.t }
func (h *tinyGoHAL) SPI() SPI             { return h.spi }
func (h *tinyGoHAL) Storage() BlockDevice { return h.sd }
