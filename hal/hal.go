package hal

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfs"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// Time provides a base tick stream.
//
// Each value is a tick sequence number; consumers feed it to the scheduler.
type Time interface {
	Ticks() <-chan uint64
}

// SPI is a full-duplex SPI bus.
type SPI = drivers.SPI

// BlockDevice is raw block storage such as an SD card or a disk image.
type BlockDevice = tinyfs.BlockDevice

// HAL provides the only contact point between the OS and the outside world.
//
// SPI and Storage may return nil when the platform has none.
type HAL interface {
	Logger() Logger
	LED() LED
	GPIO() GPIO
	Time() Time
	SPI() SPI
	Storage() BlockDevice
}
