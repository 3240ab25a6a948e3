package kernel

import "context"

// Queue is a FIFO of fixed-size items copied in and out of caller-owned
// storage.
type Queue struct {
	buf      []byte
	itemSize int
	capacity int
	head     int
	count    int

	senders   waitList
	receivers waitList
	live      bool
}

// CreateQueueStatic initializes q to hold capacity items of itemSize bytes in
// storage.
func (k *Kernel) CreateQueueStatic(q *Queue, storage []byte, capacity, itemSize int) error {
	if capacity <= 0 || itemSize <= 0 || capacity*itemSize > len(storage) {
		return ErrItemSize
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if q.live {
		return ErrInUse
	}
	*q = Queue{
		buf:      storage[:capacity*itemSize],
		itemSize: itemSize,
		capacity: capacity,
		live:     true,
	}
	return nil
}

func (q *Queue) push(item []byte) {
	tail := (q.head + q.count) % q.capacity
	copy(q.buf[tail*q.itemSize:(tail+1)*q.itemSize], item)
	q.count++
}

func (q *Queue) pop(out []byte) {
	copy(out, q.buf[q.head*q.itemSize:(q.head+1)*q.itemSize])
	q.head = (q.head + 1) % q.capacity
	q.count--
}

func (q *Queue) peek(out []byte) {
	copy(out, q.buf[q.head*q.itemSize:(q.head+1)*q.itemSize])
}

// ItemSize returns the item size of q.
func (q *Queue) ItemSize() int { return q.itemSize }

// Send copies item to the back of q, waiting up to timeout ticks for space.
// The first ItemSize bytes of item are used.
func (k *Kernel) Send(ctx context.Context, q *Queue, item []byte, timeout Ticks) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if !q.live {
		return ErrDeleted
	}
	if len(item) < q.itemSize {
		return ErrItemSize
	}

	var deadline uint64
	if timeout != WaitForever {
		deadline = k.tick + uint64(timeout)
	}
	for {
		if q.count < q.capacity {
			q.push(item[:q.itemSize])
			if w := q.receivers.best(); w != nil {
				k.wake(w, wakeOK)
			}
			return nil
		}
		wait := WaitForever
		if timeout != WaitForever {
			if k.tick >= deadline {
				return ErrQueueFull
			}
			wait = Ticks(deadline - k.tick)
		}
		if self != nil && k.suspendAll > 0 {
			return ErrSchedulerSuspended
		}
		switch k.block(self, k.waiterFor(self), &q.senders, wait) {
		case wakeTimeout:
			return ErrQueueFull
		case wakeReset:
			return ErrQueueReset
		case wakeDeleted:
			return ErrDeleted
		}
	}
}

// SendFromISR is Send for interrupt context: it never waits and never
// switches tasks.
func (k *Kernel) SendFromISR(q *Queue, item []byte) (woken bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !q.live {
		return false, ErrDeleted
	}
	if len(item) < q.itemSize {
		return false, ErrItemSize
	}
	if q.count == q.capacity {
		return false, ErrQueueFull
	}
	q.push(item[:q.itemSize])
	if w := q.receivers.best(); w != nil {
		woken = k.preempts(k.wake(w, wakeOK))
	}
	return woken, nil
}

// Receive copies the front item of q into out and removes it, waiting up to
// timeout ticks for one to arrive.
func (k *Kernel) Receive(ctx context.Context, q *Queue, out []byte, timeout Ticks) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if !q.live {
		return ErrDeleted
	}
	if len(out) < q.itemSize {
		return ErrItemSize
	}

	var deadline uint64
	if timeout != WaitForever {
		deadline = k.tick + uint64(timeout)
	}
	for {
		if q.count > 0 {
			q.pop(out[:q.itemSize])
			if w := q.senders.best(); w != nil {
				k.wake(w, wakeOK)
			}
			return nil
		}
		wait := WaitForever
		if timeout != WaitForever {
			if k.tick >= deadline {
				return ErrQueueEmpty
			}
			wait = Ticks(deadline - k.tick)
		}
		if self != nil && k.suspendAll > 0 {
			return ErrSchedulerSuspended
		}
		switch k.block(self, k.waiterFor(self), &q.receivers, wait) {
		case wakeTimeout:
			return ErrQueueEmpty
		case wakeDeleted:
			return ErrDeleted
		}
	}
}

// ReceiveFromISR is Receive for interrupt context.
func (k *Kernel) ReceiveFromISR(q *Queue, out []byte) (woken bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !q.live {
		return false, ErrDeleted
	}
	if len(out) < q.itemSize {
		return false, ErrItemSize
	}
	if q.count == 0 {
		return false, ErrQueueEmpty
	}
	q.pop(out[:q.itemSize])
	if w := q.senders.best(); w != nil {
		woken = k.preempts(k.wake(w, wakeOK))
	}
	return woken, nil
}

// Peek copies the front item of q into out without removing it.
func (k *Kernel) Peek(q *Queue, out []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !q.live {
		return ErrDeleted
	}
	if len(out) < q.itemSize {
		return ErrItemSize
	}
	if q.count == 0 {
		return ErrQueueEmpty
	}
	q.peek(out[:q.itemSize])
	return nil
}

// Reset empties q. Blocked senders fail with ErrQueueReset; blocked receivers
// keep waiting.
func (k *Kernel) Reset(ctx context.Context, q *Queue) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if !q.live {
		return ErrDeleted
	}
	q.head, q.count = 0, 0
	k.wakeAll(&q.senders, wakeReset)
	return nil
}

// MessagesWaiting returns the number of items in q.
func (k *Kernel) MessagesWaiting(q *Queue) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !q.live {
		return 0, ErrDeleted
	}
	return q.count, nil
}

// SpacesAvailable returns the number of free item slots in q.
func (k *Kernel) SpacesAvailable(q *Queue) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !q.live {
		return 0, ErrDeleted
	}
	return q.capacity - q.count, nil
}

// DeleteQueue retires q and fails all of its waiters with ErrDeleted.
func (k *Kernel) DeleteQueue(ctx context.Context, q *Queue) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if !q.live {
		return ErrDeleted
	}
	q.live = false
	k.wakeAll(&q.senders, wakeDeleted)
	k.wakeAll(&q.receivers, wakeDeleted)
	q.count = 0
	return nil
}
