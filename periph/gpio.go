// Package periph connects board peripherals to the OSAL: pin interrupts
// that raise event bits, a shared SPI bus, and FAT storage on a block device.
package periph

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"sparkrt/hal"
	"sparkrt/osal"
)

// ISRContext names the event bits a pin interrupt sets.
type ISRContext struct {
	Group osal.EventGroupHandle
	Bits  osal.EventBits
}

// GPIO routes pin interrupts into event groups.
type GPIO struct {
	s    *osal.Service
	gpio hal.GPIO

	mu        sync.Mutex
	installed bool
	edges     []hal.GPIOEdge
	fired     uint64
}

// NewGPIO binds the pins of g to s.
func NewGPIO(s *osal.Service, g hal.GPIO) *GPIO {
	n := 0
	if g != nil {
		n = g.PinCount()
	}
	return &GPIO{s: s, gpio: g, edges: make([]hal.GPIOEdge, n)}
}

func (g *GPIO) interruptPin(pin int) (hal.GPIOInterruptPin, error) {
	if g.gpio == nil || pin < 0 || pin >= len(g.edges) {
		return nil, fmt.Errorf("periph: gpio %d: %w", pin, osal.ErrInvalidParameter)
	}
	p, ok := g.gpio.Pin(pin).(hal.GPIOInterruptPin)
	if !ok || p.Caps()&hal.GPIOCapInterrupt == 0 {
		return nil, fmt.Errorf("periph: gpio %d: no interrupt support: %w", pin, osal.ErrInvalidParameter)
	}
	return p, nil
}

// ConfigInterrupt makes pin an input with pull and records which edges
// interrupt. The handler is attached by RegisterISR.
func (g *GPIO) ConfigInterrupt(pin int, edge hal.GPIOEdge, pull hal.GPIOPull) error {
	p, err := g.interruptPin(pin)
	if err != nil {
		return err
	}
	if edge == hal.GPIOEdgeNone || edge > hal.GPIOEdgeBoth {
		return fmt.Errorf("periph: gpio %d: edge %v: %w", pin, edge, osal.ErrInvalidParameter)
	}
	if err := p.Configure(hal.GPIOModeInput, pull); err != nil {
		return fmt.Errorf("periph: %w: %w", osal.ErrInvalidParameter, err)
	}
	g.mu.Lock()
	g.edges[pin] = edge
	g.mu.Unlock()
	return nil
}

// RegisterISR attaches a handler to pin that sets isr.Bits in isr.Group
// from interrupt context and yields when that readies a higher-priority
// task. The pin must have been set up with ConfigInterrupt.
func (g *GPIO) RegisterISR(pin int, isr *ISRContext) error {
	if isr == nil {
		return osal.ErrNullPointer
	}
	p, err := g.interruptPin(pin)
	if err != nil {
		return err
	}

	g.mu.Lock()
	edge := g.edges[pin]
	if edge == hal.GPIOEdgeNone {
		g.mu.Unlock()
		return fmt.Errorf("periph: gpio %d: not configured: %w", pin, osal.ErrInvalidParameter)
	}
	if !g.installed {
		g.installed = true
		glog.V(2).Infof("periph: gpio isr service installed")
	}
	g.mu.Unlock()

	ctx := *isr
	return p.SetInterrupt(edge, func(hal.GPIOPin) { g.handle(&ctx) })
}

func (g *GPIO) handle(isr *ISRContext) {
	g.mu.Lock()
	g.fired++
	g.mu.Unlock()

	_, woken, err := g.s.EventGroupSetBitsFromISR(isr.Group, isr.Bits)
	if err != nil {
		glog.Warningf("periph: gpio isr: %v", err)
		return
	}
	g.s.YieldFromISR(woken)
}

// Interrupts returns the number of handled pin interrupts.
func (g *GPIO) Interrupts() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}
