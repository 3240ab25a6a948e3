package periph

import (
	"fmt"
	"sync"

	"sparkrt/hal"
	"sparkrt/osal"
)

// MaxSPIDevices is the number of devices one bus can carry.
const MaxSPIDevices = 2

// SPIDeviceConfig describes a device on the bus.
type SPIDeviceConfig struct {
	Name    string
	// CS is driven low for the duration of a transfer. Nil means the
	// device selects itself.
	CS      hal.GPIOPin
	ClockHz uint32
	Mode    uint8
}

// SPIBus serializes transfers from up to MaxSPIDevices devices.
type SPIBus struct {
	mu    sync.Mutex
	bus   hal.SPI
	ready bool
	devs  [MaxSPIDevices]SPIDevice
	n     int
}

// SPIDevice is a handle for transfers to one device.
type SPIDevice struct {
	b   *SPIBus
	cfg SPIDeviceConfig
}

// NewSPIBus wraps bus. Init must be called before adding devices.
func NewSPIBus(bus hal.SPI) *SPIBus {
	return &SPIBus{bus: bus}
}

// Init prepares the bus. Repeated calls are no-ops so every driver sharing
// the bus can call it.
func (b *SPIBus) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if b.bus == nil {
		return fmt.Errorf("periph: spi: no bus: %w", osal.ErrNotFound)
	}
	b.ready = true
	return nil
}

// AddDevice registers a device. It fails with ErrNoMemory once
// MaxSPIDevices are registered.
func (b *SPIBus) AddDevice(cfg SPIDeviceConfig) (*SPIDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return nil, fmt.Errorf("periph: spi: bus not initialized: %w", osal.ErrInvalidParameter)
	}
	if b.n >= MaxSPIDevices {
		return nil, fmt.Errorf("periph: spi: %s: %w", cfg.Name, osal.ErrNoMemory)
	}
	if cfg.CS != nil {
		if err := cfg.CS.Configure(hal.GPIOModeOutput, hal.GPIOPullNone); err != nil {
			return nil, fmt.Errorf("periph: spi: %s: %w", cfg.Name, err)
		}
		if err := cfg.CS.Write(true); err != nil {
			return nil, fmt.Errorf("periph: spi: %s: %w", cfg.Name, err)
		}
	}
	d := &b.devs[b.n]
	*d = SPIDevice{b: b, cfg: cfg}
	b.n++
	return d, nil
}

// Devices returns the number of registered devices.
func (b *SPIBus) Devices() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Name returns the configured device name.
func (d *SPIDevice) Name() string { return d.cfg.Name }

// Transmit clocks buf out and replaces it with the bytes clocked in. Up to
// two bytes go in one transaction; longer buffers are sent as 16-bit
// transactions, with a final 8-bit one for an odd length.
func (d *SPIDevice) Transmit(buf []byte) error {
	if d == nil || d.b == nil {
		return osal.ErrNullPointer
	}
	if len(buf) == 0 {
		return osal.ErrInvalidParameter
	}
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.cfg.CS != nil {
		if err := d.cfg.CS.Write(false); err != nil {
			return fmt.Errorf("periph: spi: %s: select: %w", d.cfg.Name, err)
		}
		defer d.cfg.CS.Write(true)
	}

	if len(buf) <= 2 {
		if err := b.bus.Tx(buf, buf); err != nil {
			return fmt.Errorf("periph: spi: %s: %w", d.cfg.Name, err)
		}
		return nil
	}
	for i := 0; i < len(buf); i += 2 {
		end := i + 2
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[i:end]
		if err := b.bus.Tx(chunk, chunk); err != nil {
			return fmt.Errorf("periph: spi: %s: transaction %d: %w", d.cfg.Name, i/2, err)
		}
	}
	return nil
}
