package kernel

import "context"

// thread is one incarnation of a task. It outlives the TCB it was created
// for, so a TCB can be reused as soon as the scheduler lets go of it.
type thread struct {
	k      *Kernel
	run    chan struct{}
	killed bool
	// set by the task's own goroutine once it has dropped the kernel lock
	// for good; deferred unlocks on the way out must not touch it again
	exited bool
	tcb    *TCB
	ctx    context.Context
}

type threadKey struct{}

func withThread(ctx context.Context, th *thread) context.Context {
	return context.WithValue(ctx, threadKey{}, th)
}

func threadFrom(ctx context.Context) *thread {
	if ctx == nil {
		return nil
	}
	th, _ := ctx.Value(threadKey{}).(*thread)
	return th
}

// IsTask reports whether ctx belongs to a task of any kernel.
func IsTask(ctx context.Context) bool {
	return threadFrom(ctx) != nil
}
