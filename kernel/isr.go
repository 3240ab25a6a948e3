package kernel

// YieldFromISR requests a task switch at the end of an interrupt handler when
// woken is set. An idle CPU is dispatched at once; otherwise the running task
// is preempted at its next kernel call or tick.
func (k *Kernel) YieldFromISR(woken bool) {
	if !woken {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.suspendAll > 0 {
		return
	}
	if k.current == nil {
		k.dispatch()
		return
	}
	k.yieldPending = true
}
