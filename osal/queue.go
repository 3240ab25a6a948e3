package osal

import (
	"context"
	"errors"

	"sparkrt/kernel"
)

// queueRecord is one queue slot. refs and dying pin a deleted slot the same
// way eventGroupRecord does.
type queueRecord struct {
	q       kernel.Queue
	storage [QueueStorageBytes]byte
	refs    int
	dying   bool
}

func (r *queueRecord) Reset() {
	r.refs = 0
	r.dying = false
}

// QueueCreate allocates a queue of capacity items of itemSize bytes. The
// items must fit in QueueStorageBytes.
func (s *Service) QueueCreate(capacity, itemSize uint32) (QueueHandle, error) {
	if capacity == 0 || itemSize == 0 || uint64(capacity)*uint64(itemSize) > QueueStorageBytes {
		return QueueHandle{}, ErrInvalidParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, rec, err := s.queues.Reserve()
	if err != nil {
		return QueueHandle{}, ErrNoMemory
	}
	if err := s.k.CreateQueueStatic(&rec.q, rec.storage[:], int(capacity), int(itemSize)); err != nil {
		s.queues.Release(slot)
		return QueueHandle{}, schedulerError("create queue", err)
	}
	return QueueHandle{slot}, nil
}

// lookupQueue resolves h. s.mu must be held.
func (s *Service) lookupQueue(h QueueHandle) (*kernel.Queue, error) {
	rec, err := s.lookupQueueRecord(h)
	if err != nil {
		return nil, err
	}
	return &rec.q, nil
}

func (s *Service) lookupQueueRecord(h QueueHandle) (*queueRecord, error) {
	if h.IsNil() {
		return nil, ErrNullPointer
	}
	rec, ok := s.queues.Get(h.slot)
	if !ok || rec.dying {
		return nil, ErrNotFound
	}
	return rec, nil
}

// acquireQueue resolves h and pins its slot until releaseQueue.
func (s *Service) acquireQueue(h QueueHandle) (*queueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupQueueRecord(h)
	if err != nil {
		return nil, err
	}
	rec.refs++
	return rec, nil
}

func (s *Service) releaseQueue(h QueueHandle, rec *queueRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.refs--
	if rec.dying && rec.refs == 0 {
		s.queues.Release(h.slot)
	}
}

func queueError(op string, err error) error {
	switch {
	case errors.Is(err, kernel.ErrQueueFull):
		return ErrTimeout
	case errors.Is(err, kernel.ErrQueueEmpty):
		return ErrNotEnoughPackets
	case errors.Is(err, kernel.ErrQueueReset):
		return ErrQueueReset
	case errors.Is(err, kernel.ErrDeleted):
		return ErrNotFound
	case errors.Is(err, kernel.ErrItemSize):
		return ErrInvalidParameter
	}
	return schedulerError(op, err)
}

// QueueSend copies one item to the back of the queue, waiting up to
// timeoutMS for space. Senders still waiting when the queue is reset fail
// with ErrQueueReset.
func (s *Service) QueueSend(ctx context.Context, h QueueHandle, item []byte, timeoutMS uint32) error {
	rec, err := s.acquireQueue(h)
	if err != nil {
		return err
	}
	defer s.releaseQueue(h, rec)
	if item == nil {
		return ErrNullPointer
	}
	if err := s.k.Send(ctx, &rec.q, item, s.Ticks(timeoutMS)); err != nil {
		return queueError("send", err)
	}
	return nil
}

// QueueSendFromISR enqueues without waiting.
func (s *Service) QueueSendFromISR(h QueueHandle, item []byte) (woken bool, err error) {
	if item == nil {
		return false, ErrNullPointer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.lookupQueue(h)
	if err != nil {
		return false, err
	}
	woken, err = s.k.SendFromISR(q, item)
	if err != nil {
		return false, queueError("send from isr", err)
	}
	return woken, nil
}

// QueueReceive moves the front item into out, waiting up to timeoutMS for
// one. An empty queue at the deadline is ErrNotEnoughPackets.
func (s *Service) QueueReceive(ctx context.Context, h QueueHandle, out []byte, timeoutMS uint32) error {
	rec, err := s.acquireQueue(h)
	if err != nil {
		return err
	}
	defer s.releaseQueue(h, rec)
	if out == nil {
		return ErrNullPointer
	}
	if err := s.k.Receive(ctx, &rec.q, out, s.Ticks(timeoutMS)); err != nil {
		return queueError("receive", err)
	}
	return nil
}

// QueueReceiveFromISR dequeues without waiting.
func (s *Service) QueueReceiveFromISR(h QueueHandle, out []byte) (woken bool, err error) {
	if out == nil {
		return false, ErrNullPointer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.lookupQueue(h)
	if err != nil {
		return false, err
	}
	woken, err = s.k.ReceiveFromISR(q, out)
	if err != nil {
		return false, queueError("receive from isr", err)
	}
	return woken, nil
}

// QueuePeek copies the front item into out without removing it.
func (s *Service) QueuePeek(h QueueHandle, out []byte) error {
	if out == nil {
		return ErrNullPointer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.lookupQueue(h)
	if err != nil {
		return err
	}
	if err := s.k.Peek(q, out); err != nil {
		return queueError("peek", err)
	}
	return nil
}

// QueueReset discards every queued item.
func (s *Service) QueueReset(ctx context.Context, h QueueHandle) error {
	rec, err := s.acquireQueue(h)
	if err != nil {
		return err
	}
	defer s.releaseQueue(h, rec)
	if err := s.k.Reset(ctx, &rec.q); err != nil {
		return queueError("reset", err)
	}
	return nil
}

// QueueMessagesWaiting returns the number of queued items, 0 for a handle
// that does not resolve.
func (s *Service) QueueMessagesWaiting(h QueueHandle) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.lookupQueue(h)
	if err != nil {
		return 0
	}
	n, _ := s.k.MessagesWaiting(q)
	return uint32(n)
}

// QueueSpacesAvailable returns the number of free item slots, 0 for a handle
// that does not resolve.
func (s *Service) QueueSpacesAvailable(h QueueHandle) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.lookupQueue(h)
	if err != nil {
		return 0
	}
	n, _ := s.k.SpacesAvailable(q)
	return uint32(n)
}

// QueueDelete frees the queue. Tasks waiting on it fail with ErrNotFound.
// The slot is reissued only after every call still holding h has returned.
func (s *Service) QueueDelete(ctx context.Context, h QueueHandle) error {
	rec, err := s.acquireQueue(h)
	if err != nil {
		return err
	}
	defer s.releaseQueue(h, rec)
	if err := s.k.DeleteQueue(ctx, &rec.q); err != nil {
		return queueError("delete queue", err)
	}
	s.mu.Lock()
	rec.dying = true
	s.mu.Unlock()
	return nil
}
