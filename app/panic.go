package app

import (
	"fmt"
	"strings"

	"sparkrt/hal"
	"sparkrt/kernel"
)

// installPanicHandler reports recovered task panics on the console. The
// kernel has already deleted the task; everything else keeps running.
func installPanicHandler(k *kernel.Kernel, h hal.HAL) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		l := h.Logger()
		if l == nil {
			return
		}
		for _, line := range panicLines(info) {
			l.WriteLineString(line)
		}
	})
}

func panicLines(info kernel.PanicInfo) []string {
	lines := []string{fmt.Sprintf("panic: task=%s value=%v", info.Task, info.Value)}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
