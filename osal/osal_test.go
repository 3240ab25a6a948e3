package osal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sparkrt/kernel"
)

func newTestService(t *testing.T, hz int) *Service {
	t.Helper()
	s := New(kernel.New(kernel.Config{TickHz: hz}))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func settle(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Kernel().WaitIdle(ctx))
}

func advance(t *testing.T, s *Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.Kernel().Tick()
		settle(t, s)
	}
}

func blockForever(s *Service) TaskFunc {
	return func(ctx context.Context, _ any) {
		_ = s.TaskDelay(ctx, WaitForever)
	}
}

func TestTicksRounding(t *testing.T) {
	s := newTestService(t, 100)
	for _, tc := range []struct {
		ms   uint32
		want kernel.Ticks
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{15, 2},
		{1000, 100},
		{WaitForever, kernel.WaitForever},
	} {
		require.Equal(t, tc.want, s.Ticks(tc.ms), "ms=%d", tc.ms)
	}
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, Error(0), CodeOf(nil))
	require.Equal(t, ErrTimeout, CodeOf(ErrTimeout))
	require.Equal(t, ErrNoMemory, CodeOf(fmt.Errorf("wrapped: %w", ErrNoMemory)))
	require.Equal(t, ErrScheduler, CodeOf(errors.New("other")))

	err := schedulerError("op", kernel.ErrStackTooSmall)
	require.ErrorIs(t, err, ErrScheduler)
	require.ErrorIs(t, err, kernel.ErrStackTooSmall)
	require.Equal(t, ErrScheduler, CodeOf(err))
}

func TestTaskCreateValidation(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()

	_, err := s.TaskCreate(ctx, nil, "nil", 256, nil, PriorityLow)
	require.ErrorIs(t, err, ErrNullPointer)
	_, err = s.TaskCreate(ctx, blockForever(s), "zero", 0, nil, PriorityLow)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = s.TaskCreate(ctx, blockForever(s), "huge", StackBytes+1, nil, PriorityLow)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTaskCreateExhaustsArena(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()

	var handles []TaskHandle
	for i := 0; i < MaxTasks; i++ {
		h, err := s.TaskCreate(ctx, blockForever(s), fmt.Sprintf("t%d", i), 512, nil, PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	settle(t, s)

	_, err := s.TaskCreate(ctx, blockForever(s), "extra", 512, nil, PriorityNormal)
	require.ErrorIs(t, err, ErrNoMemory)
	for _, h := range handles {
		require.Equal(t, TaskBlocked, s.TaskGetState(ctx, h))
	}
	require.Len(t, s.Tasks(ctx), MaxTasks)

	require.NoError(t, s.TaskDelete(ctx, handles[3]))
	h, err := s.TaskCreate(ctx, blockForever(s), "again", 512, nil, PriorityNormal)
	require.NoError(t, err)
	require.NotEqual(t, handles[3], h)
	require.Equal(t, TaskDeleted, s.TaskGetState(ctx, handles[3]))
}

func TestTaskCreateRollsBackOnSchedulerError(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()

	_, err := s.TaskCreate(ctx, blockForever(s), "tiny", kernel.MinStackBytes-1, nil, PriorityLow)
	require.ErrorIs(t, err, ErrScheduler)
	require.ErrorIs(t, err, kernel.ErrStackTooSmall)

	_, err = s.TaskCreate(ctx, blockForever(s), "badprio", 512, nil, Priority(kernel.DefaultPriorities))
	require.ErrorIs(t, err, ErrScheduler)
	require.ErrorIs(t, err, kernel.ErrInvalidPriority)

	// no slot leaked
	for i := 0; i < MaxTasks; i++ {
		_, err := s.TaskCreate(ctx, blockForever(s), "fill", 512, nil, PriorityLow)
		require.NoError(t, err)
	}
}

func waitExited(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Kernel().WaitExited(ctx))
}

func TestTaskDeleteIsIdempotent(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()

	h, err := s.TaskCreate(ctx, blockForever(s), "victim", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)

	require.NoError(t, s.TaskDelete(ctx, h))
	require.NoError(t, s.TaskDelete(ctx, h))
	require.Equal(t, TaskDeleted, s.TaskGetState(ctx, h))
	require.ErrorIs(t, s.TaskDelete(ctx, TaskHandle{}), ErrNullPointer)
	require.Empty(t, s.Tasks(ctx))

	waitExited(t, s)
	advance(t, s, 5)
	require.NoError(t, s.TaskDelete(ctx, h))
}

func TestTaskDeleteBlockedFreesSlot(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	eg, err := s.EventGroupCreate()
	require.NoError(t, err)
	q, err := s.QueueCreate(1, 4)
	require.NoError(t, err)

	blockers := map[string]TaskFunc{
		"delay": blockForever(s),
		"delay until": func(ctx context.Context, _ any) {
			_ = s.TaskDelayUntil(ctx, 60000)
		},
		"wait bits": func(ctx context.Context, _ any) {
			_, _ = s.EventGroupWaitBits(ctx, eg, 0x1, true, false, WaitForever)
		},
		"receive": func(ctx context.Context, _ any) {
			_ = s.QueueReceive(ctx, q, make([]byte, 4), WaitForever)
		},
		"suspended": func(ctx context.Context, _ any) {
			_ = s.TaskSuspend(ctx, s.TaskGetCurrent(ctx))
		},
	}
	var handles []TaskHandle
	for name, fn := range blockers {
		h, err := s.TaskCreate(ctx, fn, name, 512, nil, PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	settle(t, s)
	require.Len(t, s.Tasks(ctx), len(blockers))

	for _, h := range handles {
		require.NoError(t, s.TaskDelete(ctx, h))
	}
	waitExited(t, s)
	advance(t, s, 5)
	require.Empty(t, s.Tasks(ctx))

	// every slot can be filled again and the new tasks run
	var runs atomic.Int32
	for i := 0; i < MaxTasks; i++ {
		_, err := s.TaskCreate(ctx, func(ctx context.Context, _ any) {
			runs.Add(1)
			_ = s.TaskDelay(ctx, WaitForever)
		}, fmt.Sprintf("refill%d", i), 512, nil, PriorityLow)
		require.NoError(t, err)
	}
	settle(t, s)
	require.Equal(t, int32(MaxTasks), runs.Load())
	for _, h := range handles {
		require.Equal(t, TaskDeleted, s.TaskGetState(ctx, h))
	}
}

func TestCloseUnwindsBlockedTasks(t *testing.T) {
	s := New(kernel.New(kernel.Config{TickHz: 1000}))
	ctx := context.Background()
	eg, err := s.EventGroupCreate()
	require.NoError(t, err)

	_, err = s.TaskCreate(ctx, blockForever(s), "sleeper", 512, nil, PriorityLow)
	require.NoError(t, err)
	_, err = s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		_, _ = s.EventGroupWaitBits(ctx, eg, 0x1, true, false, WaitForever)
	}, "waiter", 512, nil, PriorityHigh)
	require.NoError(t, err)
	settle(t, s)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Close(closeCtx)
	require.NoError(t, closeCtx.Err())
	require.Empty(t, s.Tasks(ctx))
	advance(t, s, 3)
}

func TestTaskReturnFreesSlot(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()

	h, err := s.TaskCreate(ctx, func(context.Context, any) {}, "oneshot", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)

	require.Equal(t, TaskDeleted, s.TaskGetState(ctx, h))
	require.Empty(t, s.Tasks(ctx))
}

func TestTaskSelfDelete(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	var after bool

	h, err := s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		_ = s.TaskDelete(ctx, s.TaskGetCurrent(ctx))
		after = true
	}, "quitter", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)

	require.False(t, after)
	require.Equal(t, TaskDeleted, s.TaskGetState(ctx, h))
	require.Empty(t, s.Tasks(ctx))
}

func TestTaskDelayRoundsUp(t *testing.T) {
	s := newTestService(t, 100)
	woke := make(chan uint64, 1)

	_, err := s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		_ = s.TaskDelay(ctx, 1)
		woke <- s.Kernel().TickCount()
	}, "sleeper", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)
	require.Empty(t, woke)

	advance(t, s, 1)
	require.Equal(t, uint64(1), <-woke)
}

func TestTaskDelayUntilIsDriftFree(t *testing.T) {
	s := newTestService(t, 1000)
	const period = 10
	var wakes []uint64

	_, err := s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		for i := 0; i < 4; i++ {
			if err := s.TaskDelayUntil(ctx, period); err != nil {
				return
			}
			wakes = append(wakes, s.Kernel().TickCount())
			// work that takes part of the period
			_ = s.TaskDelay(ctx, 3)
		}
	}, "periodic", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)
	advance(t, s, 50)

	require.Equal(t, []uint64{10, 20, 30, 40}, wakes)
}

func TestTaskDelayUntilSeedsFromCreation(t *testing.T) {
	s := newTestService(t, 1000)
	advance(t, s, 5)
	woke := make(chan uint64, 1)

	_, err := s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		_ = s.TaskDelay(ctx, 2)
		if err := s.TaskDelayUntil(ctx, 10); err == nil {
			woke <- s.Kernel().TickCount()
		}
	}, "late", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)
	advance(t, s, 12)

	require.Equal(t, uint64(15), <-woke)
}

func TestTaskDelayUntilOutsideTask(t *testing.T) {
	s := newTestService(t, 1000)
	require.ErrorIs(t, s.TaskDelayUntil(context.Background(), 10), ErrNotFound)
	require.ErrorIs(t, s.TaskDelayUntil(context.Background(), 0), ErrInvalidParameter)
}

func TestTaskPriority(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	own := make(chan Priority, 1)

	h, err := s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		p, _ := s.TaskPriorityGet(ctx, TaskHandle{})
		own <- p
		_ = s.TaskDelay(ctx, WaitForever)
	}, "worker", 512, nil, PriorityHigh)
	require.NoError(t, err)
	settle(t, s)
	require.Equal(t, PriorityHigh, <-own)

	p, err := s.TaskPriorityGet(ctx, h)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, p)

	require.NoError(t, s.TaskPrioritySet(ctx, h, PriorityCritical+2))
	p, err = s.TaskPriorityGet(ctx, h)
	require.NoError(t, err)
	require.Equal(t, PriorityCritical, p)

	_, err = s.TaskPriorityGet(ctx, TaskHandle{})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.TaskPrioritySet(ctx, TaskHandle{}, PriorityLow), ErrNullPointer)
	require.ErrorIs(t, s.TaskPrioritySet(ctx, h, Priority(kernel.DefaultPriorities)), ErrScheduler)
}

func TestTaskSuspendResume(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	var runs int

	h, err := s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		for {
			runs++
			_ = s.TaskDelay(ctx, 1)
		}
	}, "worker", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)

	require.NoError(t, s.TaskSuspend(ctx, h))
	require.Equal(t, TaskSuspended, s.TaskGetState(ctx, h))
	advance(t, s, 3)
	require.Equal(t, 1, runs)

	require.NoError(t, s.TaskResume(ctx, h))
	settle(t, s)
	require.Equal(t, 2, runs)

	require.ErrorIs(t, s.TaskSuspend(ctx, TaskHandle{}), ErrNullPointer)
	require.NoError(t, s.TaskDelete(ctx, h))
	require.ErrorIs(t, s.TaskResume(ctx, h), ErrNotFound)
}

func TestTaskGetStateOfCaller(t *testing.T) {
	s := newTestService(t, 1000)
	got := make(chan TaskState, 1)

	_, err := s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		got <- s.TaskGetState(ctx, TaskHandle{})
	}, "self", 512, nil, PriorityLow)
	require.NoError(t, err)
	settle(t, s)

	require.Equal(t, TaskRunning, <-got)
	require.Equal(t, TaskDeleted, s.TaskGetState(context.Background(), TaskHandle{}))
}

func TestTaskYieldAlternates(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	var order []string

	body := func(ctx context.Context, arg any) {
		for i := 0; i < 2; i++ {
			order = append(order, arg.(string))
			_ = s.TaskYield(ctx)
		}
	}
	require.NoError(t, s.SuspendAllTasks(ctx))
	for _, name := range []string{"a", "b"} {
		_, err := s.TaskCreate(ctx, body, name, 512, name, PriorityNormal)
		require.NoError(t, err)
	}
	require.NoError(t, s.ResumeAllTasks(ctx))
	settle(t, s)

	require.Equal(t, []string{"a", "b", "a", "b"}, order)
	require.ErrorIs(t, s.ResumeAllTasks(ctx), ErrScheduler)
}

func TestBlockingWhileSuspendedIsInvalid(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	q, err := s.QueueCreate(1, 1)
	require.NoError(t, err)
	g, err := s.EventGroupCreate()
	require.NoError(t, err)

	errs := make(chan error, 4)
	_, err = s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		_ = s.SuspendAllTasks(ctx)
		errs <- s.TaskDelay(ctx, 10)
		errs <- s.QueueReceive(ctx, q, make([]byte, 1), 10)
		_, err := s.EventGroupWaitBits(ctx, g, 1, false, false, WaitForever)
		errs <- err
		errs <- s.ResumeAllTasks(ctx)
	}, "holder", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)

	for i := 0; i < 3; i++ {
		err := <-errs
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorIs(t, err, kernel.ErrSchedulerSuspended)
		require.Equal(t, ErrInvalidParameter, CodeOf(err))
	}
	require.NoError(t, <-errs)
}

func TestIdleHookRegister(t *testing.T) {
	s := newTestService(t, 1000)
	require.ErrorIs(t, s.IdleHookRegister(nil), ErrNullPointer)

	calls := 0
	require.NoError(t, s.IdleHookRegister(func() { calls++ }))
	require.ErrorIs(t, s.IdleHookRegister(func() {}), ErrScheduler)

	advance(t, s, 2)
	require.Equal(t, 2, calls)
}
