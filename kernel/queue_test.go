package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, k *Kernel, capacity, itemSize int) *Queue {
	t.Helper()
	q := new(Queue)
	require.NoError(t, k.CreateQueueStatic(q, make([]byte, capacity*itemSize), capacity, itemSize))
	return q
}

func TestQueueFIFO(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 3, 2)
	ctx := context.Background()

	for _, item := range [][]byte{{1, 1}, {2, 2}, {3, 3}} {
		require.NoError(t, k.Send(ctx, q, item, 0))
	}
	require.ErrorIs(t, k.Send(ctx, q, []byte{4, 4}, 0), ErrQueueFull)
	n, err := k.MessagesWaiting(q)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	out := make([]byte, 2)
	require.NoError(t, k.Peek(q, out))
	require.Equal(t, []byte{1, 1}, out)

	for _, want := range [][]byte{{1, 1}, {2, 2}} {
		require.NoError(t, k.Receive(ctx, q, out, 0))
		require.Equal(t, want, out)
	}
	require.NoError(t, k.Send(ctx, q, []byte{5, 5}, 0))
	for _, want := range [][]byte{{3, 3}, {5, 5}} {
		require.NoError(t, k.Receive(ctx, q, out, 0))
		require.Equal(t, want, out)
	}
	require.ErrorIs(t, k.Receive(ctx, q, out, 0), ErrQueueEmpty)
	require.ErrorIs(t, k.Peek(q, out), ErrQueueEmpty)

	spaces, err := k.SpacesAvailable(q)
	require.NoError(t, err)
	require.Equal(t, 3, spaces)
}

func TestQueueCreateValidation(t *testing.T) {
	k := newTestKernel(t)
	q := new(Queue)
	require.ErrorIs(t, k.CreateQueueStatic(q, make([]byte, 8), 0, 4), ErrItemSize)
	require.ErrorIs(t, k.CreateQueueStatic(q, make([]byte, 8), 4, 0), ErrItemSize)
	require.ErrorIs(t, k.CreateQueueStatic(q, make([]byte, 8), 3, 4), ErrItemSize)
	require.NoError(t, k.CreateQueueStatic(q, make([]byte, 8), 2, 4))
	require.ErrorIs(t, k.CreateQueueStatic(q, make([]byte, 8), 2, 4), ErrInUse)

	require.ErrorIs(t, k.Send(context.Background(), q, []byte{1}, 0), ErrItemSize)
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 2, 1)
	got := make(chan []byte, 1)

	spawn(t, k, "rx", 1, func(ctx context.Context, _ any) {
		out := make([]byte, 1)
		if err := k.Receive(ctx, q, out, WaitForever); err == nil {
			got <- out
		}
	})
	settle(t, k)
	require.Empty(t, got)

	require.NoError(t, k.Send(context.Background(), q, []byte{42}, 0))
	settle(t, k)
	require.Equal(t, []byte{42}, <-got)
}

func TestReceiveTimeout(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	errs := make(chan error, 1)

	spawn(t, k, "rx", 1, func(ctx context.Context, _ any) {
		errs <- k.Receive(ctx, q, make([]byte, 1), 3)
	})
	settle(t, k)
	advance(t, k, 2)
	require.Empty(t, errs)
	advance(t, k, 1)
	require.ErrorIs(t, <-errs, ErrQueueEmpty)
}

func TestHighestPriorityReceiverFirst(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 2, 1)
	got := make(chan string, 2)

	for _, p := range []struct {
		name string
		prio Priority
	}{{"low", 1}, {"high", 3}} {
		err := k.CreateStatic(context.Background(), TaskParams{
			Entry: func(ctx context.Context, arg any) {
				if err := k.Receive(ctx, q, make([]byte, 1), WaitForever); err == nil {
					got <- arg.(string)
				}
			},
			Name: p.name, Arg: p.name, Priority: p.prio, Stack: make([]byte, MinStackBytes),
		}, new(TCB))
		require.NoError(t, err)
		settle(t, k)
	}

	require.NoError(t, k.Send(context.Background(), q, []byte{1}, 0))
	settle(t, k)
	require.Equal(t, "high", <-got)
	require.Empty(t, got)

	require.NoError(t, k.Send(context.Background(), q, []byte{2}, 0))
	settle(t, k)
	require.Equal(t, "low", <-got)
}

func TestSendBlocksUntilSpace(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	errs := make(chan error, 1)
	require.NoError(t, k.Send(context.Background(), q, []byte{1}, 0))

	spawn(t, k, "tx", 1, func(ctx context.Context, _ any) {
		errs <- k.Send(ctx, q, []byte{2}, WaitForever)
	})
	settle(t, k)
	require.Empty(t, errs)

	out := make([]byte, 1)
	require.NoError(t, k.Receive(context.Background(), q, out, 0))
	require.Equal(t, []byte{1}, out)
	settle(t, k)
	require.NoError(t, <-errs)

	require.NoError(t, k.Receive(context.Background(), q, out, 0))
	require.Equal(t, []byte{2}, out)
}

func TestResetFailsBlockedSenders(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	errs := make(chan error, 1)
	require.NoError(t, k.Send(context.Background(), q, []byte{1}, 0))

	spawn(t, k, "tx", 1, func(ctx context.Context, _ any) {
		errs <- k.Send(ctx, q, []byte{2}, WaitForever)
	})
	settle(t, k)

	require.NoError(t, k.Reset(context.Background(), q))
	settle(t, k)
	require.ErrorIs(t, <-errs, ErrQueueReset)

	n, err := k.MessagesWaiting(q)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSendTimeoutWhenFull(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	errs := make(chan error, 1)
	require.NoError(t, k.Send(context.Background(), q, []byte{1}, 0))

	spawn(t, k, "tx", 1, func(ctx context.Context, _ any) {
		errs <- k.Send(ctx, q, []byte{2}, 2)
	})
	settle(t, k)
	advance(t, k, 2)
	require.ErrorIs(t, <-errs, ErrQueueFull)
}

func TestQueueFromISR(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	got := make(chan byte, 1)

	spawn(t, k, "rx", 2, func(ctx context.Context, _ any) {
		out := make([]byte, 1)
		if err := k.Receive(ctx, q, out, WaitForever); err == nil {
			got <- out[0]
		}
	})
	settle(t, k)

	woken, err := k.SendFromISR(q, []byte{9})
	require.NoError(t, err)
	require.True(t, woken)
	k.YieldFromISR(woken)
	settle(t, k)
	require.Equal(t, byte(9), <-got)

	_, err = k.ReceiveFromISR(q, make([]byte, 1))
	require.ErrorIs(t, err, ErrQueueEmpty)
	woken, err = k.SendFromISR(q, []byte{7})
	require.NoError(t, err)
	require.False(t, woken)
	_, err = k.SendFromISR(q, []byte{8})
	require.ErrorIs(t, err, ErrQueueFull)

	out := make([]byte, 1)
	_, err = k.ReceiveFromISR(q, out)
	require.NoError(t, err)
	require.Equal(t, byte(7), out[0])
}

func TestDeleteQueueWakesWaiters(t *testing.T) {
	k := newTestKernel(t)
	q := newQueue(t, k, 1, 1)
	errs := make(chan error, 1)

	spawn(t, k, "rx", 1, func(ctx context.Context, _ any) {
		errs <- k.Receive(ctx, q, make([]byte, 1), WaitForever)
	})
	settle(t, k)

	require.NoError(t, k.DeleteQueue(context.Background(), q))
	settle(t, k)
	require.ErrorIs(t, <-errs, ErrDeleted)
	require.ErrorIs(t, k.DeleteQueue(context.Background(), q), ErrDeleted)
	_, err := k.MessagesWaiting(q)
	require.ErrorIs(t, err, ErrDeleted)
}
