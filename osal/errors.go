package osal

import (
	"errors"
	"fmt"

	"sparkrt/kernel"
)

// Error is the closed set of OSAL result codes. A nil error is success.
type Error uint8

const (
	ErrNullPointer Error = iota + 1
	ErrInvalidParameter
	ErrNoMemory
	ErrNotFound
	ErrTimeout
	ErrNotEnoughPackets
	ErrScheduler
	ErrQueueReset
)

func (e Error) Error() string {
	switch e {
	case ErrNullPointer:
		return "osal: null pointer"
	case ErrInvalidParameter:
		return "osal: invalid parameter"
	case ErrNoMemory:
		return "osal: no memory"
	case ErrNotFound:
		return "osal: not found"
	case ErrTimeout:
		return "osal: timeout"
	case ErrNotEnoughPackets:
		return "osal: not enough packets"
	case ErrScheduler:
		return "osal: scheduler error"
	case ErrQueueReset:
		return "osal: queue reset"
	default:
		return fmt.Sprintf("osal: error %d", uint8(e))
	}
}

// CodeOf maps err to its result code. nil maps to 0 (Ok); errors from
// outside the OSAL map to ErrScheduler.
func CodeOf(err error) Error {
	if err == nil {
		return 0
	}
	var e Error
	if errors.As(err, &e) {
		return e
	}
	return ErrScheduler
}

// schedulerError wraps a kernel failure as ErrScheduler. A blocking call made
// while task switching is suspended is the caller's mistake and reports
// ErrInvalidParameter instead.
func schedulerError(op string, err error) error {
	code := ErrScheduler
	if errors.Is(err, kernel.ErrSchedulerSuspended) {
		code = ErrInvalidParameter
	}
	return fmt.Errorf("osal: %s: %w: %w", op, code, err)
}
