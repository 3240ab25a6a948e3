package kernel

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	// MaxTasks bounds the task registry.
	MaxTasks = 32

	DefaultTickHz     = 1000
	DefaultPriorities = 8
	maxPriorities     = 32
)

// Ticks is a duration in scheduler ticks.
type Ticks uint64

// WaitForever disables the timeout of a blocking call.
const WaitForever = ^Ticks(0)

// Config tunes a Kernel. Zero fields take defaults.
type Config struct {
	TickHz     int
	Priorities int
}

// Kernel is a single-CPU, priority-based, preemptive scheduler.
//
// Every task is a goroutine, but only the task holding the run token executes
// task code. Switches happen when a task enters the kernel, so a task that
// never calls into the kernel is never preempted.
type Kernel struct {
	mu sync.Mutex

	tickHz     int
	priorities Priority

	tick uint64
	seq  uint64

	tasks   [MaxTasks]*TCB
	current *thread

	timed *waiter

	suspendAll   int
	yieldPending bool

	idleHook     func()
	panicHandler func(PanicInfo)

	// closed and replaced each time the CPU goes idle
	idleCh chan struct{}

	// goroutines of deleted tasks that have not unwound yet
	unwinding int
	exitCh    chan struct{}
}

// New creates a scheduler with no tasks.
func New(cfg Config) *Kernel {
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	if cfg.Priorities <= 0 {
		cfg.Priorities = DefaultPriorities
	}
	if cfg.Priorities > maxPriorities {
		cfg.Priorities = maxPriorities
	}
	return &Kernel{
		tickHz:     cfg.TickHz,
		priorities: Priority(cfg.Priorities),
		idleCh:     make(chan struct{}),
		exitCh:     make(chan struct{}),
	}
}

// TickHz returns the tick rate.
func (k *Kernel) TickHz() int { return k.tickHz }

// Priorities returns the number of priority levels; valid priorities are
// 0..Priorities()-1.
func (k *Kernel) Priorities() int { return int(k.priorities) }

// TickCount returns the number of ticks since start.
func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// Tick advances time by one tick: expired waits time out, equal-priority
// tasks are time-sliced, and the idle hook runs when nothing is ready.
func (k *Kernel) Tick() {
	k.mu.Lock()
	k.tick++
	for w := k.timed; w != nil; {
		next := w.tnext
		if w.deadline <= k.tick {
			k.wake(w, wakeTimeout)
		}
		w = next
	}

	runHook := false
	if k.suspendAll == 0 {
		switch {
		case k.current == nil:
			k.dispatch()
			runHook = k.current == nil
		case k.current.tcb != nil:
			if next := k.bestReady(); next != nil && next.prio >= k.current.tcb.prio {
				k.yieldPending = true
			}
		}
	}
	hook := k.idleHook
	k.mu.Unlock()

	if runHook && hook != nil {
		hook()
	}
}

// TickTo advances time until the tick count reaches seq.
func (k *Kernel) TickTo(seq uint64) {
	for {
		k.mu.Lock()
		now := k.tick
		k.mu.Unlock()
		if now >= seq {
			return
		}
		k.Tick()
	}
}

// StartTick drives Tick from a wall-clock ticker until ctx is done.
func (k *Kernel) StartTick(ctx context.Context) {
	go func() {
		t := time.NewTicker(time.Second / time.Duration(k.tickHz))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				k.Tick()
			}
		}
	}()
}

// WaitIdle blocks until no task holds the CPU.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	for {
		k.mu.Lock()
		if k.current == nil {
			k.mu.Unlock()
			return nil
		}
		ch := k.idleCh
		k.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitExited blocks until the goroutine of every deleted task has unwound.
// A running task that is deleted from outside unwinds at its next kernel call.
func (k *Kernel) WaitExited(ctx context.Context) error {
	for {
		k.mu.Lock()
		if k.unwinding == 0 {
			k.mu.Unlock()
			return nil
		}
		ch := k.exitCh
		k.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SuspendAll stops task switching until the matching ResumeAll. Calls nest.
func (k *Kernel) SuspendAll() {
	k.mu.Lock()
	k.suspendAll++
	k.mu.Unlock()
}

// ResumeAll undoes one SuspendAll and performs any switch that became due.
func (k *Kernel) ResumeAll(ctx context.Context) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if k.suspendAll == 0 {
		return ErrNotSuspended
	}
	k.suspendAll--
	return nil
}

// SetIdleHook installs the function run on ticks that find no ready task.
// Only one hook can be installed.
func (k *Kernel) SetIdleHook(fn func()) error {
	if fn == nil {
		return ErrNilHook
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.idleHook != nil {
		return ErrHookInstalled
	}
	k.idleHook = fn
	return nil
}

// Shutdown deletes every task.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	var exits []func()
	for _, t := range k.tasks {
		if t == nil {
			continue
		}
		if fn := k.kill(t); fn != nil {
			exits = append(exits, fn)
		}
	}
	if k.current != nil && k.current.killed {
		// exits on its next kernel call
		k.yieldPending = true
	}
	k.mu.Unlock()

	glog.V(2).Infof("kernel: shutdown, %d tasks deleted", len(exits))
	for _, fn := range exits {
		fn()
	}
}

func (k *Kernel) nextSeq() uint64 {
	k.seq++
	return k.seq
}

// lock takes the kernel lock and returns the calling task, or nil when the
// caller runs outside the scheduler.
func (k *Kernel) lock(ctx context.Context) *thread {
	th := threadFrom(ctx)
	k.mu.Lock()
	if th == nil || th.k != k {
		return nil
	}
	if th.killed {
		k.exitKilled(th)
	}
	if th != k.current {
		return nil
	}
	return th
}

// unlock reschedules on behalf of the caller and releases the kernel lock.
func (k *Kernel) unlock(self *thread) {
	if self != nil && self.exited {
		return
	}
	if self != nil {
		k.schedule(self)
	} else {
		k.kick()
	}
	k.mu.Unlock()
}

// schedule gives the CPU away if the calling task stopped being runnable or a
// better task is ready. It returns once the caller holds the CPU again.
func (k *Kernel) schedule(self *thread) {
	if k.current != self {
		return
	}
	t := self.tcb
	if t.runnable() {
		if k.suspendAll > 0 {
			return
		}
		next := k.bestReady()
		if next == nil {
			k.yieldPending = false
			return
		}
		if next.prio > t.prio || (k.yieldPending && next.prio == t.prio) {
			k.yieldPending = false
			t.readySeq = k.nextSeq()
			k.switchTo(next)
			k.park(self)
			return
		}
		k.yieldPending = false
		return
	}
	k.dispatch()
	k.park(self)
}

// kick is schedule for callers outside the scheduler.
func (k *Kernel) kick() {
	if k.suspendAll > 0 {
		return
	}
	if k.current == nil {
		k.dispatch()
		return
	}
	if k.current.tcb == nil {
		return
	}
	if next := k.bestReady(); next != nil && next.prio > k.current.tcb.prio {
		k.yieldPending = true
	}
}

// dispatch hands the CPU to the best ready task, or idles.
func (k *Kernel) dispatch() {
	if k.suspendAll == 0 {
		if next := k.bestReady(); next != nil {
			k.switchTo(next)
			return
		}
	}
	k.current = nil
	close(k.idleCh)
	k.idleCh = make(chan struct{})
}

func (k *Kernel) switchTo(t *TCB) {
	k.current = t.th
	select {
	case t.th.run <- struct{}{}:
	default:
	}
}

// park drops the kernel lock until the caller is given the CPU again.
func (k *Kernel) park(self *thread) {
	k.mu.Unlock()
	<-self.run
	k.mu.Lock()
	if self.killed {
		k.exitKilled(self)
	}
}

// exitKilled ends the goroutine of a deleted task. The kernel lock is held on
// entry and released before the goroutine unwinds.
func (k *Kernel) exitKilled(th *thread) {
	if k.current == th {
		k.dispatch()
	}
	th.exited = true
	k.mu.Unlock()
	runtime.Goexit()
}

func (k *Kernel) bestReady() *TCB {
	var best *TCB
	for _, t := range k.tasks {
		if t == nil || t.th == k.current || !t.runnable() {
			continue
		}
		if best == nil || t.prio > best.prio || (t.prio == best.prio && t.readySeq < best.readySeq) {
			best = t
		}
	}
	return best
}

// preempts reports whether a newly ready task outranks the running one.
func (k *Kernel) preempts(t *TCB) bool {
	if t == nil {
		return false
	}
	if k.current == nil || k.current.tcb == nil {
		return true
	}
	return t.prio > k.current.tcb.prio
}
