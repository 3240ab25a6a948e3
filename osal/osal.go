// Package osal is a handle-based abstraction over the kernel: tasks, event
// groups and queues live in fixed tables sized at compile time, so nothing is
// allocated per object once the Service exists.
//
// Timeouts are in milliseconds. 0 never blocks and WaitForever never times
// out. Operations that take a context.Context identify the calling task from
// it; a context that does not belong to a task marks a caller outside the
// scheduler, which may still block on the same tick-based timeouts.
package osal

import (
	"context"
	"math"
	"sync"

	"github.com/golang/glog"

	"sparkrt/kernel"
	"sparkrt/osal/arena"
)

// Capacities of the static tables. StackBytes is the stack reserved per task
// slot and QueueStorageBytes the item storage per queue.
const (
	MaxTasks          = 7
	StackBytes        = 4096
	MaxEventGroups    = 8
	MaxQueues         = 8
	QueueStorageBytes = 1024
)

// WaitForever as a timeout blocks until the condition holds.
const WaitForever uint32 = math.MaxUint32

// Service owns the object tables. All methods are safe for concurrent use.
//
// mu guards the tables and record metadata. It is never held across a kernel
// call that can block or switch tasks.
type Service struct {
	k *kernel.Kernel

	mu     sync.Mutex
	tasks  *arena.Table[taskRecord]
	groups *arena.Table[eventGroupRecord]
	queues *arena.Table[queueRecord]
}

// New creates the service on top of k.
func New(k *kernel.Kernel) *Service {
	return &Service{
		k:      k,
		tasks:  arena.New[taskRecord](MaxTasks),
		groups: arena.New[eventGroupRecord](MaxEventGroups),
		queues: arena.New[queueRecord](MaxQueues),
	}
}

// Kernel returns the underlying scheduler.
func (s *Service) Kernel() *kernel.Kernel { return s.k }

// Ticks converts a millisecond timeout to scheduler ticks, rounding up so a
// nonzero wait lasts at least one tick.
func (s *Service) Ticks(ms uint32) kernel.Ticks {
	switch ms {
	case WaitForever:
		return kernel.WaitForever
	case 0:
		return 0
	}
	t := (uint64(ms)*uint64(s.k.TickHz()) + 999) / 1000
	if t == 0 {
		t = 1
	}
	return kernel.Ticks(t)
}

// YieldFromISR requests a task switch at the end of an interrupt handler
// when woken is set.
func (s *Service) YieldFromISR(woken bool) {
	s.k.YieldFromISR(woken)
}

// Close deletes every task, event group and queue. Called from outside the
// scheduler, it also waits until ctx is done for the deleted tasks to unwind.
func (s *Service) Close(ctx context.Context) {
	s.k.Shutdown()
	if !kernel.IsTask(ctx) {
		if err := s.k.WaitExited(ctx); err != nil {
			glog.Warningf("osal: close: tasks still unwinding: %v", err)
		}
	}

	s.mu.Lock()
	var groups []EventGroupHandle
	s.groups.Each(func(slot arena.Slot, _ *eventGroupRecord) bool {
		groups = append(groups, EventGroupHandle{slot})
		return true
	})
	var queues []QueueHandle
	s.queues.Each(func(slot arena.Slot, _ *queueRecord) bool {
		queues = append(queues, QueueHandle{slot})
		return true
	})
	s.mu.Unlock()

	for _, h := range groups {
		_ = s.EventGroupDelete(ctx, h)
	}
	for _, h := range queues {
		_ = s.QueueDelete(ctx, h)
	}
}
