//go:build tinygo && bootdebug

package app

import (
	"machine"
	"sync"
	"time"

	"sparkrt/hal"
)

var (
	bootDiagMu      sync.Mutex
	bootDiagStep    string
	bootDiagStarted bool
)

// bootStep records the current boot step and, on first use, starts a
// goroutine that repeats it on the console until the scheduler takes over.
func bootStep(h hal.HAL, msg string) {
	bootDiagMu.Lock()
	bootDiagStep = msg
	start := !bootDiagStarted
	bootDiagStarted = true
	bootDiagMu.Unlock()

	if start {
		bootDiagStart(h)
	}
}

func bootDiagStart(h hal.HAL) {
	if h == nil {
		return
	}
	l := h.Logger()

	go func() {
		for {
			bootDiagMu.Lock()
			step := bootDiagStep
			bootDiagMu.Unlock()

			if step == "" {
				step = "<empty>"
			}
			line := "bootdiag: " + step

			if l != nil {
				l.WriteLineString(line)
			}

			// Also stream to USB CDC so early boot is visible without a UART adapter.
			if usb := machine.USBCDC; usb != nil {
				_, _ = usb.Write([]byte(line + "\r\n"))
			}
			if step == bootStepDone {
				return
			}

			time.Sleep(250 * time.Millisecond)
		}
	}()
}
