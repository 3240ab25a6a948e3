package osal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueCreateValidation(t *testing.T) {
	s := newTestService(t, 1000)

	_, err := s.QueueCreate(0, 4)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = s.QueueCreate(4, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = s.QueueCreate(QueueStorageBytes, 2)
	require.ErrorIs(t, err, ErrInvalidParameter)

	for i := 0; i < MaxQueues; i++ {
		_, err := s.QueueCreate(4, 4)
		require.NoError(t, err)
	}
	_, err = s.QueueCreate(4, 4)
	require.ErrorIs(t, err, ErrNoMemory)
}

func TestQueueRoundTripFIFO(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	const size = 6
	h, err := s.QueueCreate(4, size)
	require.NoError(t, err)

	items := [][]byte{
		[]byte("alpha!"),
		[]byte("bravo!"),
		[]byte("charl!"),
	}
	for _, item := range items {
		require.NoError(t, s.QueueSend(ctx, h, item, 0))
	}
	require.Equal(t, uint32(3), s.QueueMessagesWaiting(h))
	require.Equal(t, uint32(1), s.QueueSpacesAvailable(h))

	peek := make([]byte, size)
	require.NoError(t, s.QueuePeek(h, peek))
	require.Equal(t, items[0], peek)

	for _, want := range items {
		out := make([]byte, size)
		require.NoError(t, s.QueueReceive(ctx, h, out, 0))
		require.Equal(t, want, out)
	}
	require.Zero(t, s.QueueMessagesWaiting(h))
}

func TestQueueReceiveEmptyDoesNotBlock(t *testing.T) {
	s := newTestService(t, 1000)
	h, err := s.QueueCreate(2, 1)
	require.NoError(t, err)

	err = s.QueueReceive(context.Background(), h, make([]byte, 1), 0)
	require.ErrorIs(t, err, ErrNotEnoughPackets)
	require.ErrorIs(t, s.QueuePeek(h, make([]byte, 1)), ErrNotEnoughPackets)
}

func TestQueueReceiveTimesOut(t *testing.T) {
	s := newTestService(t, 1000)
	h, err := s.QueueCreate(2, 1)
	require.NoError(t, err)
	errs := make(chan error, 1)

	_, err = s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		errs <- s.QueueReceive(ctx, h, make([]byte, 1), 3)
	}, "rx", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)

	advance(t, s, 3)
	require.ErrorIs(t, <-errs, ErrNotEnoughPackets)
}

func TestQueueSendWhenFull(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	h, err := s.QueueCreate(1, 1)
	require.NoError(t, err)

	require.NoError(t, s.QueueSend(ctx, h, []byte{1}, 0))
	require.ErrorIs(t, s.QueueSend(ctx, h, []byte{2}, 0), ErrTimeout)
	require.ErrorIs(t, s.QueueSend(ctx, h, nil, 0), ErrNullPointer)
	require.ErrorIs(t, s.QueueSend(ctx, QueueHandle{}, []byte{1}, 0), ErrNullPointer)
	require.ErrorIs(t, s.QueueSend(ctx, h, []byte{}, 0), ErrInvalidParameter)
}

func TestQueueResetReleasesBlockedSender(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	h, err := s.QueueCreate(2, 1)
	require.NoError(t, err)
	require.NoError(t, s.QueueSend(ctx, h, []byte{1}, 0))
	require.NoError(t, s.QueueSend(ctx, h, []byte{2}, 0))

	errs := make(chan error, 1)
	_, err = s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		errs <- s.QueueSend(ctx, h, []byte{3}, WaitForever)
	}, "tx", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)
	require.Empty(t, errs)

	require.NoError(t, s.QueueReset(ctx, h))
	settle(t, s)

	require.ErrorIs(t, <-errs, ErrQueueReset)
	require.Zero(t, s.QueueMessagesWaiting(h))
}

func TestQueueBlockedReceiverGetsItem(t *testing.T) {
	s := newTestService(t, 1000)
	h, err := s.QueueCreate(2, 4)
	require.NoError(t, err)
	got := make(chan []byte, 1)

	_, err = s.TaskCreate(context.Background(), func(ctx context.Context, _ any) {
		out := make([]byte, 4)
		if err := s.QueueReceive(ctx, h, out, WaitForever); err == nil {
			got <- out
		}
	}, "rx", 512, nil, PriorityHigh)
	require.NoError(t, err)
	settle(t, s)

	woken, err := s.QueueSendFromISR(h, []byte("ping"))
	require.NoError(t, err)
	require.True(t, woken)
	s.YieldFromISR(woken)
	settle(t, s)
	require.Equal(t, []byte("ping"), <-got)
}

func TestQueueReceiveFromISR(t *testing.T) {
	s := newTestService(t, 1000)
	h, err := s.QueueCreate(1, 2)
	require.NoError(t, err)

	_, err = s.QueueReceiveFromISR(h, make([]byte, 2))
	require.ErrorIs(t, err, ErrNotEnoughPackets)
	_, err = s.QueueSendFromISR(h, []byte{4, 2})
	require.NoError(t, err)
	_, err = s.QueueSendFromISR(h, []byte{4, 2})
	require.ErrorIs(t, err, ErrTimeout)

	out := make([]byte, 2)
	_, err = s.QueueReceiveFromISR(h, out)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 2}, out)
}

func TestQueueMessagesWaitingNullHandle(t *testing.T) {
	s := newTestService(t, 1000)
	require.Zero(t, s.QueueMessagesWaiting(QueueHandle{}))
	require.Zero(t, s.QueueSpacesAvailable(QueueHandle{}))
}

func TestQueueDelete(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	h, err := s.QueueCreate(1, 1)
	require.NoError(t, err)

	require.NoError(t, s.QueueDelete(ctx, h))
	require.ErrorIs(t, s.QueueSend(ctx, h, []byte{1}, 0), ErrNotFound)
	require.ErrorIs(t, s.QueueDelete(ctx, h), ErrNotFound)
	require.Zero(t, s.QueueMessagesWaiting(h))
}

func TestQueueSlotPinnedUntilReceiverReturns(t *testing.T) {
	s := newTestService(t, 1000)
	ctx := context.Background()
	h, err := s.QueueCreate(1, 1)
	require.NoError(t, err)

	errs := make(chan error, 1)
	_, err = s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		errs <- s.QueueReceive(ctx, h, make([]byte, 1), WaitForever)
	}, "rx", 512, nil, PriorityNormal)
	require.NoError(t, err)
	settle(t, s)

	s.Kernel().SuspendAll()
	require.NoError(t, s.QueueDelete(ctx, h))
	var fresh []QueueHandle
	for i := 0; i < MaxQueues-1; i++ {
		q, err := s.QueueCreate(1, 1)
		require.NoError(t, err)
		fresh = append(fresh, q)
	}
	_, err = s.QueueCreate(1, 1)
	require.ErrorIs(t, err, ErrNoMemory)
	require.NoError(t, s.Kernel().ResumeAll(ctx))
	settle(t, s)

	require.ErrorIs(t, <-errs, ErrNotFound)
	require.ErrorIs(t, s.QueueSend(ctx, h, []byte{1}, 0), ErrNotFound)
	for _, q := range fresh {
		require.Zero(t, s.QueueMessagesWaiting(q))
	}

	q, err := s.QueueCreate(1, 1)
	require.NoError(t, err)
	require.NotEqual(t, h, q)
	require.ErrorIs(t, s.QueueSend(ctx, h, []byte{1}, 0), ErrNotFound)
	require.Zero(t, s.QueueMessagesWaiting(q))
}
