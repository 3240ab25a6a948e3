// Package app wires the OSAL demo system: a sensor task samples an SPI
// device on a fixed period and queues the readings, a logger task waits on
// an event group for new samples or button presses and writes them to the
// console and the SD card.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"sparkrt/hal"
	"sparkrt/internal/config"
	"sparkrt/kernel"
	"sparkrt/osal"
	"sparkrt/periph"
)

// Event bits of the system event group.
const (
	BitButton osal.EventBits = 1 << 0
	BitSample osal.EventBits = 1 << 1
)

const taskStackBytes = 2048

var errTickLimit = errors.New("app: tick limit reached")

// Stats counts what the demo tasks have done.
type Stats struct {
	Sampled  uint64
	Dropped  uint64
	Logged   uint64
	Presses  uint64
	StoreErr uint64
}

// System is a running kernel, OSAL and the demo tasks.
type System struct {
	h   hal.HAL
	cfg config.Config
	k   *kernel.Kernel
	s   *osal.Service

	gpio   *periph.GPIO
	sensor *periph.SPIDevice
	store  *periph.Storage

	events  osal.EventGroupHandle
	samples osal.QueueHandle

	mu    sync.Mutex
	stats Stats
	led   bool
}

// New builds the system on h and starts its tasks. A nil cfg means
// config.Default.
func New(h hal.HAL, cfg *config.Config) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootStep(h, "kernel")
	k := kernel.New(kernel.Config{TickHz: cfg.Kernel.TickHz, Priorities: cfg.Kernel.Priorities})
	installPanicHandler(k, h)
	sys := &System{
		h:   h,
		cfg: *cfg,
		k:   k,
		s:   osal.New(k),
	}

	if err := sys.init(); err != nil {
		sys.Close(context.Background())
		return nil, err
	}
	bootStep(h, bootStepDone)
	return sys, nil
}

const bootStepDone = "running"

func (sys *System) init() error {
	var err error
	bootStep(sys.h, "objects")
	if sys.events, err = sys.s.EventGroupCreate(); err != nil {
		return fmt.Errorf("app: event group: %w", err)
	}
	if sys.samples, err = sys.s.QueueCreate(sys.cfg.Demo.QueueDepth, PacketBytes); err != nil {
		return fmt.Errorf("app: sample queue: %w", err)
	}

	bootStep(sys.h, "spi")
	bus := periph.NewSPIBus(sys.h.SPI())
	if err := bus.Init(); err != nil {
		return err
	}
	var cs hal.GPIOPin
	if pin := sys.cfg.Demo.SensorCSPin; pin != 0 && sys.h.GPIO() != nil {
		cs = sys.h.GPIO().Pin(pin)
	}
	if sys.sensor, err = bus.AddDevice(periph.SPIDeviceConfig{Name: "sensor", CS: cs, ClockHz: 1_000_000}); err != nil {
		return err
	}

	bootStep(sys.h, "gpio")
	sys.gpio = periph.NewGPIO(sys.s, sys.h.GPIO())
	pin := sys.cfg.Demo.ButtonPin
	if err := sys.gpio.ConfigInterrupt(pin, hal.GPIOEdgeFalling, hal.GPIOPullUp); err != nil {
		return err
	}
	if err := sys.gpio.RegisterISR(pin, &periph.ISRContext{Group: sys.events, Bits: BitButton}); err != nil {
		return err
	}

	if sys.cfg.Storage.Enabled {
		bootStep(sys.h, "storage")
		sys.mountStorage()
	}

	bootStep(sys.h, "tasks")
	ctx := context.Background()
	if _, err := sys.s.TaskCreate(ctx, sys.loggerTask, "logger", taskStackBytes, nil, osal.PriorityNormal); err != nil {
		return fmt.Errorf("app: logger task: %w", err)
	}
	if _, err := sys.s.TaskCreate(ctx, sys.sensorTask, "sensor", taskStackBytes, nil, osal.PriorityHigh); err != nil {
		return fmt.Errorf("app: sensor task: %w", err)
	}
	return nil
}

// mountStorage mounts the card. A missing or unreadable card leaves the
// system running with console logging only.
func (sys *System) mountStorage() {
	dev := sys.h.Storage()
	if dev == nil {
		glog.Warningf("app: storage enabled but the board has no card")
		return
	}
	st := periph.NewStorage(dev)
	err := st.Mount(periph.StorageConfig{
		FormatIfMountFailed: sys.cfg.Storage.FormatIfMountFailed,
		MaxFiles:            sys.cfg.Storage.MaxFiles,
	})
	if err != nil {
		glog.Warningf("app: storage: %v", err)
		return
	}
	sys.store = st
}

func (sys *System) sensorTask(ctx context.Context, _ any) {
	var seq uint32
	var pkt [PacketBytes]byte
	for {
		if err := sys.s.TaskDelayUntil(ctx, sys.cfg.Demo.SamplePeriodMs); err != nil {
			glog.Warningf("app: sensor: %v", err)
			return
		}
		seq++
		frame := readFrame(seq)
		if err := sys.sensor.Transmit(frame[:]); err != nil {
			glog.Warningf("app: sensor read %d: %v", seq, err)
			continue
		}
		Sample{Seq: seq, Value: parseFrame(frame)}.encode(pkt[:])

		err := sys.s.QueueSend(ctx, sys.samples, pkt[:], 0)
		sys.mu.Lock()
		if err != nil {
			sys.stats.Dropped++
		} else {
			sys.stats.Sampled++
		}
		sys.mu.Unlock()
		if err != nil && !errors.Is(err, osal.ErrTimeout) {
			glog.Warningf("app: sensor: %v", err)
			return
		}

		if _, err := sys.s.EventGroupSetBits(ctx, sys.events, BitSample); err != nil {
			glog.Warningf("app: sensor: %v", err)
			return
		}
	}
}

func (sys *System) loggerTask(ctx context.Context, _ any) {
	buf := make([]byte, PacketBytes)
	for {
		bits, err := sys.s.EventGroupWaitBits(ctx, sys.events, BitButton|BitSample, true, false, osal.WaitForever)
		if err != nil {
			glog.Warningf("app: logger: %v", err)
			return
		}
		if bits&BitButton != 0 {
			sys.onButton()
		}
		for {
			err := sys.s.QueueReceive(ctx, sys.samples, buf, 0)
			if errors.Is(err, osal.ErrNotEnoughPackets) {
				break
			}
			if err != nil {
				glog.Warningf("app: logger: %v", err)
				return
			}
			sys.logSample(decodeSample(buf))
		}
	}
}

func (sys *System) onButton() {
	sys.mu.Lock()
	sys.stats.Presses++
	n := sys.stats.Presses
	sys.led = !sys.led
	on := sys.led
	sys.mu.Unlock()

	sys.h.Logger().WriteLineString(fmt.Sprintf("button: press %d", n))
	if led := sys.h.LED(); led != nil {
		if on {
			led.High()
		} else {
			led.Low()
		}
	}
}

func (sys *System) logSample(sm Sample) {
	sys.h.Logger().WriteLineString(sm.String())

	var storeErr error
	if sys.store != nil {
		storeErr = sys.store.AppendLine(sys.cfg.Storage.LogPath, fmt.Sprintf("%d,%d", sm.Seq, sm.Value))
		if storeErr != nil {
			glog.Warningf("app: logger: %v", storeErr)
		}
	}

	sys.mu.Lock()
	sys.stats.Logged++
	if storeErr != nil {
		sys.stats.StoreErr++
	}
	sys.mu.Unlock()
}

// Run feeds HAL ticks to the kernel and, when configured, pulses the button
// pin. It returns when ctx is done or the configured tick limit is reached.
func (sys *System) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sys.pumpTicks(ctx) })
	if every := sys.cfg.Demo.PulseEveryMs; every > 0 {
		g.Go(func() error { return sys.pulseButton(ctx, time.Duration(every)*time.Millisecond) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errTickLimit) {
		return err
	}
	return nil
}

func (sys *System) pumpTicks(ctx context.Context) error {
	var ticks <-chan uint64
	if t := sys.h.Time(); t != nil {
		ticks = t.Ticks()
	}
	limit := sys.cfg.Run.Ticks
	for {
		select {
		case <-ctx.Done():
			return nil
		case seq, ok := <-ticks:
			if !ok {
				return nil
			}
			if limit > 0 && seq > limit {
				seq = limit
			}
			sys.k.TickTo(seq)
			if limit > 0 && sys.k.TickCount() >= limit {
				return errTickLimit
			}
		}
	}
}

func (sys *System) pulseButton(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := sys.PressButton(); err != nil {
				glog.Warningf("app: pulse: %v", err)
				return nil
			}
		}
	}
}

// PressButton drives the button pin low and back high, as a press would.
// It needs a pin the host can drive.
func (sys *System) PressButton() error {
	g := sys.h.GPIO()
	if g == nil {
		return fmt.Errorf("app: no gpio")
	}
	stim, ok := g.Pin(sys.cfg.Demo.ButtonPin).(hal.GPIOStimulus)
	if !ok {
		return fmt.Errorf("app: button pin %d cannot be driven", sys.cfg.Demo.ButtonPin)
	}
	if err := stim.Drive(false); err != nil {
		return err
	}
	return stim.Drive(true)
}

// Advance runs n ticks, letting the tasks settle after each one.
func (sys *System) Advance(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		sys.k.Tick()
		if err := sys.k.WaitIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (sys *System) Stats() Stats {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.stats
}

// Service returns the OSAL instance.
func (sys *System) Service() *osal.Service { return sys.s }

// Storage returns the mounted card, or nil.
func (sys *System) Storage() *periph.Storage { return sys.store }

// Close stops every task and unmounts the card.
func (sys *System) Close(ctx context.Context) {
	sys.s.Close(ctx)
	if sys.store != nil {
		if err := sys.store.Unmount(); err != nil {
			glog.Warningf("app: unmount: %v", err)
		}
	}
}
