package osal

import "sparkrt/osal/arena"

// TaskHandle refers to a task slot. The zero value is the null handle.
type TaskHandle struct{ slot arena.Slot }

// EventGroupHandle refers to an event group slot. The zero value is the
// null handle.
type EventGroupHandle struct{ slot arena.Slot }

// QueueHandle refers to a queue slot. The zero value is the null handle.
type QueueHandle struct{ slot arena.Slot }

func (h TaskHandle) IsNil() bool       { return h.slot.IsZero() }
func (h EventGroupHandle) IsNil() bool { return h.slot.IsZero() }
func (h QueueHandle) IsNil() bool      { return h.slot.IsZero() }

func (h TaskHandle) String() string       { return "task:" + h.slot.String() }
func (h EventGroupHandle) String() string { return "eventgroup:" + h.slot.String() }
func (h QueueHandle) String() string      { return "queue:" + h.slot.String() }
