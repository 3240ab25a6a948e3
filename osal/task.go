package osal

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"sparkrt/kernel"
	"sparkrt/osal/arena"
)

// TaskFunc is a task body. ctx identifies the task and must be passed to
// every Service call made by the task. Returning ends the task and frees its
// slot.
type TaskFunc func(ctx context.Context, arg any)

// Priority is a task priority. Larger runs first.
type Priority uint8

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
}

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskSuspended
	TaskDeleted
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskSuspended:
		return "suspended"
	case TaskDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("TaskState(%d)", uint8(s))
	}
}

func taskState(s kernel.State) TaskState {
	switch s {
	case kernel.StateRunning:
		return TaskRunning
	case kernel.StateReady:
		return TaskReady
	case kernel.StateBlocked:
		return TaskBlocked
	case kernel.StateSuspended:
		return TaskSuspended
	default:
		return TaskDeleted
	}
}

func fromKernelPriority(p kernel.Priority) Priority {
	if p >= kernel.Priority(PriorityCritical) {
		return PriorityCritical
	}
	return Priority(p)
}

// taskRecord is one task slot. The TCB is reinitialized by the kernel on
// create, so Reset leaves it alone.
type taskRecord struct {
	tcb   kernel.TCB
	stack [StackBytes]byte

	name       string
	stackBytes int
	lastWake   uint64
	dying      bool
}

func (r *taskRecord) Reset() {
	r.name = ""
	r.stackBytes = 0
	r.lastWake = 0
	r.dying = false
}

// TaskInfo is a snapshot of one task slot.
type TaskInfo struct {
	Handle     TaskHandle
	Name       string
	Priority   Priority
	State      TaskState
	StackBytes int
	LastWake   uint64
}

// TaskCreate starts a task in a free slot using stackBytes of the slot's
// stack.
func (s *Service) TaskCreate(ctx context.Context, entry TaskFunc, name string, stackBytes uint32, arg any, prio Priority) (TaskHandle, error) {
	if entry == nil {
		return TaskHandle{}, ErrNullPointer
	}
	if stackBytes == 0 || stackBytes > StackBytes {
		return TaskHandle{}, ErrInvalidParameter
	}

	s.mu.Lock()
	slot, rec, err := s.tasks.Reserve()
	if err != nil {
		s.mu.Unlock()
		return TaskHandle{}, ErrNoMemory
	}
	rec.name = name
	rec.stackBytes = int(stackBytes)
	rec.lastWake = s.k.TickCount()
	tcb := &rec.tcb
	stack := rec.stack[:stackBytes]
	s.mu.Unlock()

	err = s.k.CreateStatic(ctx, kernel.TaskParams{
		Entry:    kernel.TaskFunc(entry),
		Name:     name,
		Arg:      arg,
		Priority: kernel.Priority(prio),
		Stack:    stack,
		OnExit:   func() { s.releaseTask(slot) },
	}, tcb)
	if err != nil {
		s.mu.Lock()
		s.tasks.Release(slot)
		s.mu.Unlock()
		glog.Warningf("osal: create task %q rejected, slot %v returned: %v", name, slot, err)
		return TaskHandle{}, schedulerError("create task", err)
	}
	glog.V(2).Infof("osal: task %q created in slot %v", name, slot)
	return TaskHandle{slot}, nil
}

func (s *Service) releaseTask(slot arena.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks.Release(slot)
}

// TaskDelete removes a task and frees its slot. Deleting a stale handle is a
// logged no-op. A task deleting itself does not return.
func (s *Service) TaskDelete(ctx context.Context, h TaskHandle) error {
	if h.IsNil() {
		return ErrNullPointer
	}
	s.mu.Lock()
	rec, ok := s.tasks.Get(h.slot)
	if !ok || rec.dying {
		s.mu.Unlock()
		glog.Warningf("osal: delete of stale %v ignored", h)
		return nil
	}
	rec.dying = true
	tcb := &rec.tcb
	s.mu.Unlock()

	if err := s.k.Delete(ctx, tcb); err != nil && !errors.Is(err, kernel.ErrDeleted) {
		return schedulerError("delete task", err)
	}
	return nil
}

// lookupTask resolves h to its TCB. s.mu must be held.
func (s *Service) lookupTask(h TaskHandle) (*kernel.TCB, error) {
	if h.IsNil() {
		return nil, ErrNullPointer
	}
	rec, ok := s.tasks.Get(h.slot)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec.tcb, nil
}

func (s *Service) taskError(op string, err error) error {
	if errors.Is(err, kernel.ErrDeleted) {
		return ErrNotFound
	}
	return schedulerError(op, err)
}

// TaskSuspend stops a task from running until TaskResume.
func (s *Service) TaskSuspend(ctx context.Context, h TaskHandle) error {
	s.mu.Lock()
	tcb, err := s.lookupTask(h)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.k.Suspend(ctx, tcb); err != nil {
		return s.taskError("suspend task", err)
	}
	return nil
}

// TaskResume makes a suspended task eligible to run.
func (s *Service) TaskResume(ctx context.Context, h TaskHandle) error {
	s.mu.Lock()
	tcb, err := s.lookupTask(h)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.k.Resume(ctx, tcb); err != nil {
		return s.taskError("resume task", err)
	}
	return nil
}

// TaskDelay blocks the caller for at least ms milliseconds. 0 yields.
func (s *Service) TaskDelay(ctx context.Context, ms uint32) error {
	if err := s.k.Delay(ctx, s.Ticks(ms)); err != nil {
		return schedulerError("delay", err)
	}
	return nil
}

// TaskDelayUntil blocks the calling task until its last wake time plus
// periodMS, then makes that the new last wake time. The first call measures
// from the task's creation.
func (s *Service) TaskDelayUntil(ctx context.Context, periodMS uint32) error {
	if periodMS == 0 || periodMS == WaitForever {
		return ErrInvalidParameter
	}
	s.mu.Lock()
	slot, rec := s.findCaller(ctx)
	if rec == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	if rec.lastWake == 0 {
		rec.lastWake = s.k.TickCount()
	}
	last := rec.lastWake
	s.mu.Unlock()

	next, err := s.k.DelayUntil(ctx, last, s.Ticks(periodMS))
	if err != nil {
		return schedulerError("delay until", err)
	}

	s.mu.Lock()
	if rec, ok := s.tasks.Get(slot); ok {
		rec.lastWake = next
	}
	s.mu.Unlock()
	return nil
}

// findCaller scans the table for the slot of the calling task. s.mu must be
// held.
func (s *Service) findCaller(ctx context.Context) (arena.Slot, *taskRecord) {
	cur := s.k.Current(ctx)
	if cur == nil {
		return arena.Slot{}, nil
	}
	var (
		found arena.Slot
		hit   *taskRecord
	)
	s.tasks.Each(func(slot arena.Slot, rec *taskRecord) bool {
		if &rec.tcb == cur {
			found, hit = slot, rec
			return false
		}
		return true
	})
	return found, hit
}

// TaskGetCurrent returns the handle of the calling task, or the null handle
// outside a task.
func (s *Service) TaskGetCurrent(ctx context.Context) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, rec := s.findCaller(ctx)
	if rec == nil {
		return TaskHandle{}
	}
	return TaskHandle{slot}
}

// TaskPrioritySet changes the priority of a task.
func (s *Service) TaskPrioritySet(ctx context.Context, h TaskHandle, prio Priority) error {
	s.mu.Lock()
	tcb, err := s.lookupTask(h)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.k.SetPriority(ctx, tcb, kernel.Priority(prio)); err != nil {
		return s.taskError("set priority", err)
	}
	return nil
}

// TaskPriorityGet returns the priority of a task, or of the caller for the
// null handle.
func (s *Service) TaskPriorityGet(ctx context.Context, h TaskHandle) (Priority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tcb *kernel.TCB
	if !h.IsNil() {
		var err error
		if tcb, err = s.lookupTask(h); err != nil {
			return 0, err
		}
	}
	p, err := s.k.Priority(ctx, tcb)
	switch {
	case errors.Is(err, kernel.ErrNotTask), errors.Is(err, kernel.ErrDeleted):
		return 0, ErrNotFound
	case err != nil:
		return 0, schedulerError("get priority", err)
	}
	return fromKernelPriority(p), nil
}

// SuspendAllTasks stops task switching until ResumeAllTasks. Calls nest and
// always succeed; ctx is accepted for symmetry with ResumeAllTasks. While
// switching is suspended a task must not block: delays and waits with a
// nonzero timeout return ErrInvalidParameter at once.
func (s *Service) SuspendAllTasks(ctx context.Context) error {
	s.k.SuspendAll()
	return nil
}

// ResumeAllTasks undoes one SuspendAllTasks.
func (s *Service) ResumeAllTasks(ctx context.Context) error {
	if err := s.k.ResumeAll(ctx); err != nil {
		return schedulerError("resume all", err)
	}
	return nil
}

// TaskGetState returns the state of a task, or of the caller for the null
// handle. Handles that no longer resolve report TaskDeleted.
func (s *Service) TaskGetState(ctx context.Context, h TaskHandle) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.IsNil() {
		return taskState(s.k.State(ctx, nil))
	}
	tcb, err := s.lookupTask(h)
	if err != nil {
		return TaskDeleted
	}
	return taskState(s.k.State(ctx, tcb))
}

// TaskYield gives the rest of the time slice to another ready task of the
// same priority.
func (s *Service) TaskYield(ctx context.Context) error {
	s.k.Yield(ctx)
	return nil
}

// IdleHookRegister installs fn to run whenever no task is ready. fn must not
// block.
func (s *Service) IdleHookRegister(fn func()) error {
	if fn == nil {
		return ErrNullPointer
	}
	if err := s.k.SetIdleHook(fn); err != nil {
		return schedulerError("register idle hook", err)
	}
	return nil
}

// Tasks returns a snapshot of the task table.
func (s *Service) Tasks(ctx context.Context) []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TaskInfo
	s.tasks.Each(func(slot arena.Slot, rec *taskRecord) bool {
		info := TaskInfo{
			Handle:     TaskHandle{slot},
			Name:       rec.name,
			State:      taskState(s.k.State(ctx, &rec.tcb)),
			StackBytes: rec.stackBytes,
			LastWake:   rec.lastWake,
		}
		if p, err := s.k.Priority(ctx, &rec.tcb); err == nil {
			info.Priority = fromKernelPriority(p)
		}
		out = append(out, info)
		return true
	})
	return out
}
