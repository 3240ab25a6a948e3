package kernel

import "errors"

var (
	ErrTimeout            = errors.New("kernel: timeout")
	ErrQueueFull          = errors.New("kernel: queue full")
	ErrQueueEmpty         = errors.New("kernel: queue empty")
	ErrQueueReset         = errors.New("kernel: queue reset while waiting")
	ErrDeleted            = errors.New("kernel: object deleted")
	ErrInUse              = errors.New("kernel: object already initialized")
	ErrInvalidPriority    = errors.New("kernel: invalid priority")
	ErrStackTooSmall      = errors.New("kernel: stack too small")
	ErrNoTaskSlot         = errors.New("kernel: task registry full")
	ErrNilEntry           = errors.New("kernel: nil task entry")
	ErrNilHook            = errors.New("kernel: nil idle hook")
	ErrHookInstalled      = errors.New("kernel: idle hook already installed")
	ErrSchedulerSuspended = errors.New("kernel: scheduler suspended")
	ErrNotSuspended       = errors.New("kernel: scheduler not suspended")
	ErrInvalidBits        = errors.New("kernel: invalid event bits")
	ErrItemSize           = errors.New("kernel: invalid item size")
	ErrNotTask            = errors.New("kernel: caller is not a task")
)
