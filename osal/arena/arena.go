// Package arena provides fixed-capacity slot tables for statically
// allocated objects.
//
// A Table hands out slots identified by an index and a generation. The
// generation changes every time a slot is reissued, so a Slot kept past its
// release stops resolving instead of aliasing the next occupant.
package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// ErrExhausted is returned by Reserve when every slot is in use.
var ErrExhausted = errors.New("arena: no free slot")

// Slot identifies one reservation. The zero Slot is never issued.
type Slot struct {
	Index uint16
	Gen   uint32
}

// IsZero reports whether s is the zero Slot.
func (s Slot) IsZero() bool { return s.Gen == 0 }

func (s Slot) String() string { return fmt.Sprintf("%d.%d", s.Index, s.Gen) }

// Resetter is implemented by slot types that clear themselves on release.
// Slots of other types are overwritten with their zero value.
type Resetter interface {
	Reset()
}

// Table is a fixed set of T slots. It is not safe for concurrent use.
type Table[T any] struct {
	slots []T
	gens  []uint32
	used  *bitset.BitSet
}

// New allocates a table with capacity slots.
func New[T any](capacity int) *Table[T] {
	if capacity <= 0 || capacity > math.MaxUint16+1 {
		panic(fmt.Sprintf("arena: invalid capacity %d", capacity))
	}
	return &Table[T]{
		slots: make([]T, capacity),
		gens:  make([]uint32, capacity),
		used:  bitset.New(uint(capacity)),
	}
}

// Cap returns the number of slots.
func (t *Table[T]) Cap() int { return len(t.slots) }

// Len returns the number of slots in use.
func (t *Table[T]) Len() int { return int(t.used.Count()) }

// Reserve claims the lowest free slot.
func (t *Table[T]) Reserve() (Slot, *T, error) {
	i, ok := t.used.NextClear(0)
	if !ok || i >= uint(len(t.slots)) {
		return Slot{}, nil, ErrExhausted
	}
	t.used.Set(i)
	t.gens[i]++
	if t.gens[i] == 0 {
		t.gens[i] = 1
	}
	return Slot{Index: uint16(i), Gen: t.gens[i]}, &t.slots[i], nil
}

// Get resolves a live slot.
func (t *Table[T]) Get(s Slot) (*T, bool) {
	if !t.live(s) {
		return nil, false
	}
	return &t.slots[s.Index], true
}

// Release returns s to the free set and clears its storage. It reports
// whether s was live.
func (t *Table[T]) Release(s Slot) bool {
	if !t.live(s) {
		return false
	}
	p := &t.slots[s.Index]
	if r, ok := any(p).(Resetter); ok {
		r.Reset()
	} else {
		var zero T
		*p = zero
	}
	t.used.Clear(uint(s.Index))
	return true
}

// Each calls fn for every live slot in index order until fn returns false.
func (t *Table[T]) Each(fn func(Slot, *T) bool) {
	for i, ok := t.used.NextSet(0); ok && i < uint(len(t.slots)); i, ok = t.used.NextSet(i + 1) {
		if !fn(Slot{Index: uint16(i), Gen: t.gens[i]}, &t.slots[i]) {
			return
		}
	}
}

func (t *Table[T]) live(s Slot) bool {
	return s.Gen != 0 &&
		int(s.Index) < len(t.slots) &&
		t.used.Test(uint(s.Index)) &&
		t.gens[s.Index] == s.Gen
}
