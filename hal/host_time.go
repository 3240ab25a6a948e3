//go:build !tinygo

package hal

import "time"

type hostTime struct {
	ch      chan uint64
	seq     uint64
	tickDur time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(tickDur time.Duration) *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), tickDur: tickDur}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step publishes the ticks that elapsed in wall time since the last call.
// The first call publishes n.
func (t *hostTime) step(n uint64) {
	now := time.Now()
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(n)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.tickDur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.tickDur
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
