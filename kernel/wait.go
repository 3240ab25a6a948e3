package kernel

type wakeReason uint8

const (
	wakeNone wakeReason = iota
	wakeOK
	wakeTimeout
	wakeReset
	wakeDeleted
)

// waiter is a pending wait. Tasks use the waiter embedded in their TCB;
// callers outside the scheduler get a fresh one with a wake channel.
type waiter struct {
	th   *thread
	prio Priority
	done chan struct{}

	list       *waitList
	prev, next *waiter

	timed        bool
	deadline     uint64
	tprev, tnext *waiter

	reason wakeReason
	value  uint32

	// event group wait
	bits  uint32
	all   bool
	clear bool
}

// waitList is an intrusive list of waiters in arrival order.
type waitList struct {
	head, tail *waiter
}

func (l *waitList) push(w *waiter) {
	w.list = l
	w.prev = l.tail
	w.next = nil
	if l.tail != nil {
		l.tail.next = w
	} else {
		l.head = w
	}
	l.tail = w
}

func (l *waitList) remove(w *waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.prev, w.next, w.list = nil, nil, nil
}

// best returns the highest-priority waiter, earliest first among equals.
func (l *waitList) best() *waiter {
	var best *waiter
	for w := l.head; w != nil; w = w.next {
		if best == nil || w.prio > best.prio {
			best = w
		}
	}
	return best
}

func (l *waitList) empty() bool { return l.head == nil }

func (k *Kernel) addTimed(w *waiter, deadline uint64) {
	w.timed = true
	w.deadline = deadline
	w.tprev = nil
	w.tnext = k.timed
	if k.timed != nil {
		k.timed.tprev = w
	}
	k.timed = w
}

func (k *Kernel) removeTimed(w *waiter) {
	if w.tprev != nil {
		w.tprev.tnext = w.tnext
	} else {
		k.timed = w.tnext
	}
	if w.tnext != nil {
		w.tnext.tprev = w.tprev
	}
	w.tprev, w.tnext, w.timed = nil, nil, false
}

// waiterFor prepares the waiter for the caller.
func (k *Kernel) waiterFor(self *thread) *waiter {
	if self == nil {
		return &waiter{done: make(chan struct{}, 1)}
	}
	t := self.tcb
	t.w = waiter{th: self, prio: t.prio}
	return &t.w
}

// block parks the caller on l (which may be nil for a plain delay) until it is
// woken or the timeout expires. The kernel lock is held on entry and on return.
func (k *Kernel) block(self *thread, w *waiter, l *waitList, timeout Ticks) wakeReason {
	w.reason = wakeNone
	if l != nil {
		l.push(w)
	}
	if timeout != WaitForever {
		k.addTimed(w, k.tick+uint64(timeout))
	}
	if self != nil {
		self.tcb.waiting = true
		k.schedule(self)
		return w.reason
	}

	k.mu.Unlock()
	<-w.done
	k.mu.Lock()
	return w.reason
}

// wake ends w's wait. It returns the task made ready, if any.
func (k *Kernel) wake(w *waiter, reason wakeReason) *TCB {
	if w.list != nil {
		w.list.remove(w)
	}
	if w.timed {
		k.removeTimed(w)
	}
	w.reason = reason
	if w.th == nil {
		select {
		case w.done <- struct{}{}:
		default:
		}
		return nil
	}
	t := w.th.tcb
	if t == nil {
		return nil
	}
	t.waiting = false
	if t.suspended {
		return nil
	}
	t.readySeq = k.nextSeq()
	return t
}

// wakeAll ends every wait on l and reports whether a woken task outranks the
// running one.
func (k *Kernel) wakeAll(l *waitList, reason wakeReason) bool {
	woke := false
	for !l.empty() {
		if k.preempts(k.wake(l.head, reason)) {
			woke = true
		}
	}
	return woke
}
