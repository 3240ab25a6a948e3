//go:build !tinygo

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"tinygo.org/x/tinyfs"
)

const (
	// HostPinCount is the number of general-purpose virtual pins after LED.
	HostPinCount = 7

	hostSDBlockBytes    = 512
	hostSDDefaultBlocks = 4096
	hostDefaultTickDur  = time.Millisecond
)

// HostConfig selects the host backends.
type HostConfig struct {
	// TickDuration is the wall time of one Time tick. Zero means 1ms.
	TickDuration time.Duration
	// SDImagePath backs Storage with a file. Empty keeps it in memory.
	SDImagePath string
	// SDImageBlocks sizes a new image or memory device in 512-byte blocks.
	SDImageBlocks int64
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	t      *hostTime
	spi    *hostSPI
	sd     BlockDevice
}

// New returns a host HAL implementation with in-memory storage.
func New() HAL {
	h, err := NewHost(HostConfig{})
	if err != nil {
		// Unreachable without an image path.
		panic(err)
	}
	return h
}

// NewHost returns a host HAL implementation configured by cfg.
func NewHost(cfg HostConfig) (HAL, error) {
	h, err := newHostHAL(cfg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHostHAL(cfg HostConfig) (*hostHAL, error) {
	if cfg.TickDuration <= 0 {
		cfg.TickDuration = hostDefaultTickDur
	}
	if cfg.SDImageBlocks <= 0 {
		cfg.SDImageBlocks = hostSDDefaultBlocks
	}

	var sd BlockDevice
	if cfg.SDImagePath != "" {
		img, err := openHostSD(cfg.SDImagePath, cfg.SDImageBlocks)
		if err != nil {
			return nil, err
		}
		sd = img
	} else {
		sd = tinyfs.NewMemoryDevice(hostSDBlockBytes, hostSDBlockBytes, int(cfg.SDImageBlocks))
	}

	logger := &hostLogger{}
	led := &hostLED{logger: logger}
	pins := []GPIOPin{newLEDPin("LED", led)}
	for i := 0; i < HostPinCount; i++ {
		pins = append(pins, newVirtualPin(fmt.Sprintf("GPIO%d", i+1),
			GPIOCapInput|GPIOCapOutput|GPIOCapPullUp|GPIOCapPullDown|GPIOCapInterrupt))
	}
	return &hostHAL{
		logger: logger,
		led:    led,
		gpio:   newVirtualGPIO(pins),
		t:      newHostTime(cfg.TickDuration),
		spi:    &hostSPI{},
		sd:     sd,
	}, nil
}

func (h *hostHAL) Logger() Logger       { return h.logger }
func (h *hostHAL) LED() LED             { return h.led }
func (h *hostHAL) GPIO() GPIO           { return h.gpio }
func (h *hostHAL) Time() Time           { return h.t }
func (h *hostHAL) SPI() SPI             { return h.spi }
func (h *hostHAL) Storage() BlockDevice { return h.sd }

// Close releases the storage image, if any.
func (h *hostHAL) Close() error {
	if img, ok := h.sd.(*hostSD); ok {
		return img.Close()
	}
	return nil
}

type hostLogger struct{}

func (l *hostLogger) WriteLineString(s string) {
	glog.Info(s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	glog.Info(string(b))
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}

// hostSPI is a loopback bus: every byte clocked out is clocked back in.
type hostSPI struct {
	mu  sync.Mutex
	txs uint64
}

func (s *hostSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w != nil && r != nil && len(w) != len(r) {
		return fmt.Errorf("spi: tx %d bytes, rx %d bytes", len(w), len(r))
	}
	s.txs++
	if r == nil {
		return nil
	}
	if w == nil {
		for i := range r {
			r[i] = 0xFF
		}
		return nil
	}
	copy(r, w)
	return nil
}

func (s *hostSPI) Transfer(b byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	return b, nil
}

// Transactions returns the number of completed bus transactions.
func (s *hostSPI) Transactions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}
