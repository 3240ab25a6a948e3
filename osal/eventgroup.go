package osal

import (
	"context"
	"errors"

	"sparkrt/kernel"
)

// EventBits is a set of event flags. Only the low 24 bits are usable.
type EventBits = uint32

// EventBitsMask covers the usable event bits.
const EventBitsMask EventBits = kernel.EventBitsMask

// eventGroupRecord is one event group slot. refs counts calls that resolved
// the slot and have not returned yet; a deleted slot is released to the table
// only once refs drops to zero.
type eventGroupRecord struct {
	eg    kernel.EventGroup
	refs  int
	dying bool
}

func (r *eventGroupRecord) Reset() {
	r.refs = 0
	r.dying = false
}

// EventGroupCreate allocates an event group with all bits clear.
func (s *Service) EventGroupCreate() (EventGroupHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, rec, err := s.groups.Reserve()
	if err != nil {
		return EventGroupHandle{}, ErrNoMemory
	}
	if err := s.k.CreateEventGroupStatic(&rec.eg); err != nil {
		s.groups.Release(slot)
		return EventGroupHandle{}, schedulerError("create event group", err)
	}
	return EventGroupHandle{slot}, nil
}

// lookupGroup resolves h. s.mu must be held.
func (s *Service) lookupGroup(h EventGroupHandle) (*eventGroupRecord, error) {
	if h.IsNil() {
		return nil, ErrNullPointer
	}
	rec, ok := s.groups.Get(h.slot)
	if !ok || rec.dying {
		return nil, ErrNotFound
	}
	return rec, nil
}

// acquireGroup resolves h and pins its slot until releaseGroup, for calls
// that drop s.mu before entering the kernel.
func (s *Service) acquireGroup(h EventGroupHandle) (*eventGroupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupGroup(h)
	if err != nil {
		return nil, err
	}
	rec.refs++
	return rec, nil
}

func (s *Service) releaseGroup(h EventGroupHandle, rec *eventGroupRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.refs--
	if rec.dying && rec.refs == 0 {
		s.groups.Release(h.slot)
	}
}

func eventError(op string, err error) error {
	switch {
	case errors.Is(err, kernel.ErrDeleted):
		return ErrNotFound
	case errors.Is(err, kernel.ErrInvalidBits):
		return ErrInvalidParameter
	case errors.Is(err, kernel.ErrTimeout):
		return ErrTimeout
	}
	return schedulerError(op, err)
}

// EventGroupSetBits sets bits and returns the value before the call.
func (s *Service) EventGroupSetBits(ctx context.Context, h EventGroupHandle, bits EventBits) (EventBits, error) {
	rec, err := s.acquireGroup(h)
	if err != nil {
		return 0, err
	}
	defer s.releaseGroup(h, rec)
	prev, err := s.k.SetBits(ctx, &rec.eg, bits)
	if err != nil {
		return 0, eventError("set bits", err)
	}
	return prev, nil
}

// EventGroupSetBitsFromISR sets bits from interrupt context. woken reports
// that a task outranking the interrupted one became ready; pass it to
// YieldFromISR before returning from the handler.
func (s *Service) EventGroupSetBitsFromISR(h EventGroupHandle, bits EventBits) (prev EventBits, woken bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupGroup(h)
	if err != nil {
		return 0, false, err
	}
	prev, woken, err = s.k.SetBitsFromISR(&rec.eg, bits)
	if err != nil {
		return 0, false, eventError("set bits from isr", err)
	}
	return prev, woken, nil
}

// EventGroupWaitBits waits up to timeoutMS for any of bits, or all of them
// with waitForAll. With clearOnExit the waited bits are cleared on success.
// It returns the group's bits when the wait ended.
func (s *Service) EventGroupWaitBits(ctx context.Context, h EventGroupHandle, bits EventBits, clearOnExit, waitForAll bool, timeoutMS uint32) (EventBits, error) {
	rec, err := s.acquireGroup(h)
	if err != nil {
		return 0, err
	}
	defer s.releaseGroup(h, rec)
	v, err := s.k.WaitBits(ctx, &rec.eg, bits, clearOnExit, waitForAll, s.Ticks(timeoutMS))
	if err != nil {
		return v, eventError("wait bits", err)
	}
	return v, nil
}

// EventGroupSync sets set and then waits for all of wait.
func (s *Service) EventGroupSync(ctx context.Context, h EventGroupHandle, set, wait EventBits, timeoutMS uint32) (EventBits, error) {
	rec, err := s.acquireGroup(h)
	if err != nil {
		return 0, err
	}
	defer s.releaseGroup(h, rec)
	v, err := s.k.Sync(ctx, &rec.eg, set, wait, s.Ticks(timeoutMS))
	if err != nil {
		return v, eventError("sync", err)
	}
	return v, nil
}

// EventGroupClearBits clears bits and returns the value before the call.
func (s *Service) EventGroupClearBits(h EventGroupHandle, bits EventBits) (EventBits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupGroup(h)
	if err != nil {
		return 0, err
	}
	prev, err := s.k.ClearBits(&rec.eg, bits)
	if err != nil {
		return 0, eventError("clear bits", err)
	}
	return prev, nil
}

// EventGroupGetBits returns the current bits.
func (s *Service) EventGroupGetBits(h EventGroupHandle) (EventBits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupGroup(h)
	if err != nil {
		return 0, err
	}
	bits, err := s.k.GetBits(&rec.eg)
	if err != nil {
		return 0, eventError("get bits", err)
	}
	return bits, nil
}

// EventGroupGetBitsFromISR is EventGroupGetBits for interrupt context.
func (s *Service) EventGroupGetBitsFromISR(h EventGroupHandle) (EventBits, error) {
	return s.EventGroupGetBits(h)
}

// EventGroupDelete frees the group. Tasks waiting on it fail with
// ErrNotFound. The slot is not reissued until every call still holding h has
// returned, so a stale handle never reaches a group created after the delete.
func (s *Service) EventGroupDelete(ctx context.Context, h EventGroupHandle) error {
	rec, err := s.acquireGroup(h)
	if err != nil {
		return err
	}
	defer s.releaseGroup(h, rec)
	if err := s.k.DeleteEventGroup(ctx, &rec.eg); err != nil {
		return eventError("delete event group", err)
	}
	s.mu.Lock()
	rec.dying = true
	s.mu.Unlock()
	return nil
}
