package kernel

import (
	"context"
	"fmt"
	"runtime"

	"github.com/golang/glog"
)

// MinStackBytes is the smallest stack a task may be created with.
const MinStackBytes = 128

// stackFill is painted over a task stack at creation.
const stackFill = 0xa5

// Priority orders tasks; larger runs first.
type Priority uint8

// State is the scheduling state of a task.
type State uint8

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateSuspended
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// TaskFunc is a task body. ctx identifies the task to the kernel and must not
// be handed to other goroutines. Returning ends the task.
type TaskFunc func(ctx context.Context, arg any)

// TaskParams describes a task for CreateStatic.
type TaskParams struct {
	Entry    TaskFunc
	Name     string
	Arg      any
	Priority Priority
	Stack    []byte

	// OnExit runs once the scheduler no longer references the TCB, whether
	// the task returned, panicked or was deleted.
	OnExit func()
}

// TCB is the caller-owned control block of a task.
type TCB struct {
	name  string
	prio  Priority
	stack []byte

	th   *thread
	slot int

	w         waiter
	waiting   bool
	suspended bool
	readySeq  uint64

	onExit func()
}

func (t *TCB) runnable() bool { return !t.waiting && !t.suspended }

// Name returns the task name given at creation.
func (t *TCB) Name() string { return t.name }

// StackBytes returns the size of the task's stack buffer.
func (t *TCB) StackBytes() int { return len(t.stack) }

// TaskInfo is a snapshot of one task.
type TaskInfo struct {
	Name       string
	Priority   Priority
	State      State
	StackBytes int
}

// CreateStatic starts a task in caller-provided storage. The TCB must not be
// in use by a live task.
func (k *Kernel) CreateStatic(ctx context.Context, p TaskParams, t *TCB) error {
	if p.Entry == nil {
		return ErrNilEntry
	}
	if p.Priority >= k.priorities {
		return ErrInvalidPriority
	}
	if len(p.Stack) < MinStackBytes {
		return ErrStackTooSmall
	}

	self := k.lock(ctx)
	defer k.unlock(self)

	if t.th != nil {
		return ErrInUse
	}
	slot := -1
	for i, r := range k.tasks {
		if r == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ErrNoTaskSlot
	}

	for i := range p.Stack {
		p.Stack[i] = stackFill
	}
	th := &thread{k: k, run: make(chan struct{}, 1)}
	th.ctx = withThread(context.Background(), th)
	*t = TCB{
		name:     p.Name,
		prio:     p.Priority,
		stack:    p.Stack,
		th:       th,
		slot:     slot,
		readySeq: k.nextSeq(),
		onExit:   p.OnExit,
	}
	th.tcb = t
	k.tasks[slot] = t

	glog.V(2).Infof("kernel: task %q created prio=%d stack=%d", p.Name, p.Priority, len(p.Stack))
	go k.run(th, p.Entry, p.Arg, p.Name)
	return nil
}

func (k *Kernel) run(th *thread, entry TaskFunc, arg any, name string) {
	defer k.unwound()
	<-th.run
	k.mu.Lock()
	if th.killed {
		k.exitKilled(th)
	}
	k.mu.Unlock()

	defer k.finish(th, name)
	entry(th.ctx, arg)
}

func (k *Kernel) finish(th *thread, name string) {
	if r := recover(); r != nil {
		glog.Errorf("kernel: task %q panicked: %v", name, r)
		k.reportPanic(PanicInfo{Task: name, Value: r})
	}

	k.mu.Lock()
	var onExit func()
	if !th.killed {
		onExit = k.kill(th.tcb)
	}
	k.mu.Unlock()

	// runs while the task still holds the CPU
	if onExit != nil {
		onExit()
	}

	k.mu.Lock()
	if k.current == th {
		k.dispatch()
	}
	k.mu.Unlock()
}

func (k *Kernel) unwound() {
	k.mu.Lock()
	k.unwinding--
	if k.unwinding == 0 {
		close(k.exitCh)
		k.exitCh = make(chan struct{})
	}
	k.mu.Unlock()
}

// kill removes a task from the scheduler and returns its exit callback, or
// nil when it was already gone.
func (k *Kernel) kill(t *TCB) func() {
	th := t.th
	if th == nil || th.killed {
		return nil
	}
	th.killed = true
	k.unwinding++
	if t.w.list != nil {
		t.w.list.remove(&t.w)
	}
	if t.w.timed {
		k.removeTimed(&t.w)
	}
	k.tasks[t.slot] = nil
	th.tcb = nil
	t.th = nil
	t.waiting = false
	fn := t.onExit
	t.onExit = nil

	if k.current != th {
		select {
		case th.run <- struct{}{}:
		default:
		}
	}
	return fn
}

// Delete removes t from the scheduler. A nil t deletes the caller, in which
// case Delete does not return.
func (k *Kernel) Delete(ctx context.Context, t *TCB) error {
	self := k.lock(ctx)
	if t == nil {
		if self == nil {
			k.unlock(self)
			return ErrNotTask
		}
		t = self.tcb
	}
	th := t.th
	if th == nil {
		k.unlock(self)
		return ErrDeleted
	}
	name := t.name
	onExit := k.kill(t)

	if th == self {
		k.mu.Unlock()
		glog.V(2).Infof("kernel: task %q deleted itself", name)
		if onExit != nil {
			onExit()
		}
		k.mu.Lock()
		k.exitKilled(th)
	}
	k.mu.Unlock()

	glog.V(2).Infof("kernel: task %q deleted", name)
	if onExit != nil {
		onExit()
	}
	return nil
}

// Suspend stops t from running until Resume. A nil t suspends the caller.
func (k *Kernel) Suspend(ctx context.Context, t *TCB) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if t == nil {
		if self == nil {
			return ErrNotTask
		}
		t = self.tcb
	}
	if t.th == nil {
		return ErrDeleted
	}
	if t.th == self && k.suspendAll > 0 {
		return ErrSchedulerSuspended
	}
	t.suspended = true
	if self == nil && t.th == k.current {
		k.yieldPending = true
	}
	return nil
}

// Resume makes a suspended task eligible to run again. Resuming a task that
// is not suspended does nothing.
func (k *Kernel) Resume(ctx context.Context, t *TCB) error {
	if t == nil {
		return ErrNotTask
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if t.th == nil {
		return ErrDeleted
	}
	if !t.suspended {
		return nil
	}
	t.suspended = false
	if !t.waiting {
		t.readySeq = k.nextSeq()
	}
	return nil
}

// Yield lets other ready tasks of the same priority run.
func (k *Kernel) Yield(ctx context.Context) {
	self := k.lock(ctx)
	if self == nil {
		k.unlock(self)
		runtime.Gosched()
		return
	}
	k.yieldPending = true
	k.unlock(self)
}

// Delay blocks the caller for the given number of ticks. Zero yields.
func (k *Kernel) Delay(ctx context.Context, ticks Ticks) error {
	if ticks == 0 {
		k.Yield(ctx)
		return nil
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if self != nil && k.suspendAll > 0 {
		return ErrSchedulerSuspended
	}
	k.block(self, k.waiterFor(self), nil, ticks)
	return nil
}

// DelayUntil blocks until tick last+period and returns that tick. The result
// is the next reference point, so periodic loops do not drift. If the tick has
// already passed it returns at once.
func (k *Kernel) DelayUntil(ctx context.Context, last uint64, period Ticks) (uint64, error) {
	next := last + uint64(period)
	self := k.lock(ctx)
	defer k.unlock(self)
	if next <= k.tick {
		return next, nil
	}
	if self != nil && k.suspendAll > 0 {
		return next, ErrSchedulerSuspended
	}
	k.block(self, k.waiterFor(self), nil, Ticks(next-k.tick))
	return next, nil
}

// SetPriority changes the priority of t, or of the caller when t is nil.
func (k *Kernel) SetPriority(ctx context.Context, t *TCB, p Priority) error {
	if p >= k.priorities {
		return ErrInvalidPriority
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if t == nil {
		if self == nil {
			return ErrNotTask
		}
		t = self.tcb
	}
	if t.th == nil {
		return ErrDeleted
	}
	t.prio = p
	t.w.prio = p
	return nil
}

// Priority returns the priority of t, or of the caller when t is nil.
func (k *Kernel) Priority(ctx context.Context, t *TCB) (Priority, error) {
	th := threadFrom(ctx)
	k.mu.Lock()
	defer k.mu.Unlock()
	if t == nil {
		if th == nil || th.k != k || th.tcb == nil {
			return 0, ErrNotTask
		}
		t = th.tcb
	}
	if t.th == nil {
		return 0, ErrDeleted
	}
	return t.prio, nil
}

// State returns the scheduling state of t, or of the caller when t is nil.
func (k *Kernel) State(ctx context.Context, t *TCB) State {
	th := threadFrom(ctx)
	k.mu.Lock()
	defer k.mu.Unlock()
	if t == nil {
		if th == nil || th.k != k || th.tcb == nil {
			return StateDeleted
		}
		t = th.tcb
	}
	return k.stateOf(t)
}

func (k *Kernel) stateOf(t *TCB) State {
	switch {
	case t.th == nil:
		return StateDeleted
	case t.suspended:
		return StateSuspended
	case t.waiting:
		return StateBlocked
	case t.th == k.current:
		return StateRunning
	default:
		return StateReady
	}
}

// Current returns the TCB of the calling task, or nil outside a task.
func (k *Kernel) Current(ctx context.Context) *TCB {
	th := threadFrom(ctx)
	if th == nil || th.k != k {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return th.tcb
}

// Tasks returns a snapshot of all live tasks in registry order.
func (k *Kernel) Tasks() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []TaskInfo
	for _, t := range k.tasks {
		if t == nil {
			continue
		}
		out = append(out, TaskInfo{
			Name:       t.name,
			Priority:   t.prio,
			State:      k.stateOf(t),
			StackBytes: len(t.stack),
		})
	}
	return out
}
