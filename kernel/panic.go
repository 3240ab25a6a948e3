package kernel

// PanicInfo contains details about a task panic recovered by the kernel.
type PanicInfo struct {
	Task  string
	Value any
	Stack []byte
}

// SetPanicHandler installs the function told about recovered task panics.
// The panicking task is deleted; the kernel keeps running. The handler must
// not panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.mu.Lock()
	k.panicHandler = fn
	k.mu.Unlock()
}

func (k *Kernel) reportPanic(info PanicInfo) {
	k.mu.Lock()
	fn := k.panicHandler
	k.mu.Unlock()
	if fn == nil {
		return
	}
	info.Stack = captureStack()
	fn(info)
}
