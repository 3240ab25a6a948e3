package kernel

import "context"

// EventBitsMask covers the bits an event group can carry. The top byte is
// reserved.
const EventBitsMask uint32 = 0x00FFFFFF

// EventGroup is a caller-owned set of event bits with waiters.
type EventGroup struct {
	bits    uint32
	waiters waitList
	live    bool
}

// CreateEventGroupStatic initializes eg with all bits clear.
func (k *Kernel) CreateEventGroupStatic(eg *EventGroup) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if eg.live {
		return ErrInUse
	}
	*eg = EventGroup{live: true}
	return nil
}

func bitsSatisfied(have, want uint32, all bool) bool {
	if all {
		return have&want == want
	}
	return have&want != 0
}

// setBits ORs bits into eg and releases every waiter whose condition now
// holds. Clear-on-exit requests are applied after the walk, so all waiters
// see the same value.
func (k *Kernel) setBits(eg *EventGroup, bits uint32) (prev uint32, woke bool) {
	prev = eg.bits
	eg.bits |= bits
	var clear uint32
	for w := eg.waiters.head; w != nil; {
		next := w.next
		if bitsSatisfied(eg.bits, w.bits, w.all) {
			w.value = eg.bits
			if w.clear {
				clear |= w.bits
			}
			if k.preempts(k.wake(w, wakeOK)) {
				woke = true
			}
		}
		w = next
	}
	eg.bits &^= clear
	return prev, woke
}

// SetBits sets bits in eg and returns the value before the call.
func (k *Kernel) SetBits(ctx context.Context, eg *EventGroup, bits uint32) (uint32, error) {
	if bits&^EventBitsMask != 0 {
		return 0, ErrInvalidBits
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if !eg.live {
		return 0, ErrDeleted
	}
	prev, _ := k.setBits(eg, bits)
	return prev, nil
}

// SetBitsFromISR is SetBits for interrupt context. It never switches tasks;
// woken reports whether a task that outranks the running one became ready.
func (k *Kernel) SetBitsFromISR(eg *EventGroup, bits uint32) (prev uint32, woken bool, err error) {
	if bits&^EventBitsMask != 0 {
		return 0, false, ErrInvalidBits
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !eg.live {
		return 0, false, ErrDeleted
	}
	prev, woken = k.setBits(eg, bits)
	return prev, woken, nil
}

// ClearBits clears bits in eg and returns the value before the call.
func (k *Kernel) ClearBits(eg *EventGroup, bits uint32) (uint32, error) {
	if bits&^EventBitsMask != 0 {
		return 0, ErrInvalidBits
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !eg.live {
		return 0, ErrDeleted
	}
	prev := eg.bits
	eg.bits &^= bits
	return prev, nil
}

// GetBits returns the current bits of eg. It is safe from interrupt context.
func (k *Kernel) GetBits(eg *EventGroup) (uint32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !eg.live {
		return 0, ErrDeleted
	}
	return eg.bits, nil
}

// WaitBits blocks until any (or, with all, every) bit of bits is set in eg,
// optionally clearing them on success. It returns the bits at the moment the
// condition held, or the current bits with ErrTimeout.
func (k *Kernel) WaitBits(ctx context.Context, eg *EventGroup, bits uint32, clear, all bool, timeout Ticks) (uint32, error) {
	if bits == 0 || bits&^EventBitsMask != 0 {
		return 0, ErrInvalidBits
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if !eg.live {
		return 0, ErrDeleted
	}
	if bitsSatisfied(eg.bits, bits, all) {
		v := eg.bits
		if clear {
			eg.bits &^= bits
		}
		return v, nil
	}
	if timeout == 0 {
		return eg.bits, ErrTimeout
	}
	if self != nil && k.suspendAll > 0 {
		return eg.bits, ErrSchedulerSuspended
	}
	return k.waitBits(self, eg, bits, clear, all, timeout)
}

func (k *Kernel) waitBits(self *thread, eg *EventGroup, bits uint32, clear, all bool, timeout Ticks) (uint32, error) {
	w := k.waiterFor(self)
	w.bits, w.clear, w.all = bits, clear, all
	switch k.block(self, w, &eg.waiters, timeout) {
	case wakeOK:
		return w.value, nil
	case wakeDeleted:
		return 0, ErrDeleted
	default:
		if !eg.live {
			return 0, ErrDeleted
		}
		return eg.bits, ErrTimeout
	}
}

// Sync sets set in eg and then waits for all of wait to be set, clearing
// them on success. It is a rendezvous: each party sets its own bit and waits
// for everyone's.
func (k *Kernel) Sync(ctx context.Context, eg *EventGroup, set, wait uint32, timeout Ticks) (uint32, error) {
	if wait == 0 || (set|wait)&^EventBitsMask != 0 {
		return 0, ErrInvalidBits
	}
	self := k.lock(ctx)
	defer k.unlock(self)
	if !eg.live {
		return 0, ErrDeleted
	}
	prev, _ := k.setBits(eg, set)
	if v := prev | set; v&wait == wait {
		eg.bits &^= wait
		return v, nil
	}
	if timeout == 0 {
		return eg.bits, ErrTimeout
	}
	if self != nil && k.suspendAll > 0 {
		return eg.bits, ErrSchedulerSuspended
	}
	return k.waitBits(self, eg, wait, true, true, timeout)
}

// DeleteEventGroup retires eg and fails all of its waiters with ErrDeleted.
func (k *Kernel) DeleteEventGroup(ctx context.Context, eg *EventGroup) error {
	self := k.lock(ctx)
	defer k.unlock(self)
	if !eg.live {
		return ErrDeleted
	}
	eg.live = false
	k.wakeAll(&eg.waiters, wakeDeleted)
	eg.bits = 0
	return nil
}
