package main

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"

	"sparkrt/osal"
)

// session names the objects created from the shell. All calls are made
// from outside the scheduler.
type session struct {
	s *osal.Service

	mu     sync.Mutex
	tasks  map[string]*worker
	queues map[string]namedQueue
	groups map[string]osal.EventGroupHandle
}

type namedQueue struct {
	h    osal.QueueHandle
	size uint32
}

type worker struct {
	h    osal.TaskHandle
	runs atomic.Uint64
}

func newSession(s *osal.Service) *session {
	return &session{
		s:      s,
		tasks:  make(map[string]*worker),
		queues: make(map[string]namedQueue),
		groups: make(map[string]osal.EventGroupHandle),
	}
}

func parsePriority(s string) (osal.Priority, error) {
	for p := osal.PriorityIdle; p <= osal.PriorityCritical; p++ {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || osal.Priority(n) > osal.PriorityCritical {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return osal.Priority(n), nil
}

func parseMS(s string) (uint32, error) {
	if s == "forever" {
		return osal.WaitForever, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds %q", s)
	}
	return uint32(n), nil
}

func parseBits(s string) (osal.EventBits, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid bits %q", s)
	}
	return osal.EventBits(n), nil
}

// spawn starts a task that wakes every periodMS and counts its runs.
func (ss *session) spawn(ctx context.Context, name string, prio osal.Priority, periodMS uint32) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.tasks[name]; ok {
		return fmt.Errorf("task %q exists", name)
	}
	w := &worker{}
	h, err := ss.s.TaskCreate(ctx, func(ctx context.Context, _ any) {
		for {
			w.runs.Add(1)
			if err := ss.s.TaskDelayUntil(ctx, periodMS); err != nil {
				return
			}
		}
	}, name, 1024, nil, prio)
	if err != nil {
		return err
	}
	w.h = h
	ss.tasks[name] = w
	return nil
}

func (ss *session) task(name string) (*worker, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	w, ok := ss.tasks[name]
	if !ok {
		return nil, fmt.Errorf("no task %q", name)
	}
	return w, nil
}

func (ss *session) kill(ctx context.Context, name string) error {
	w, err := ss.task(name)
	if err != nil {
		return err
	}
	if err := ss.s.TaskDelete(ctx, w.h); err != nil {
		return err
	}
	ss.mu.Lock()
	delete(ss.tasks, name)
	ss.mu.Unlock()
	return nil
}

func (ss *session) suspend(ctx context.Context, name string) error {
	w, err := ss.task(name)
	if err != nil {
		return err
	}
	return ss.s.TaskSuspend(ctx, w.h)
}

func (ss *session) resume(ctx context.Context, name string) error {
	w, err := ss.task(name)
	if err != nil {
		return err
	}
	return ss.s.TaskResume(ctx, w.h)
}

func (ss *session) setPriority(ctx context.Context, name string, prio osal.Priority) error {
	w, err := ss.task(name)
	if err != nil {
		return err
	}
	return ss.s.TaskPrioritySet(ctx, w.h, prio)
}

// ps formats the task table.
func (ss *session) ps(ctx context.Context) string {
	runs := make(map[osal.TaskHandle]uint64)
	ss.mu.Lock()
	for _, w := range ss.tasks {
		runs[w.h] = w.runs.Load()
	}
	ss.mu.Unlock()

	infos := ss.s.Tasks(ctx)
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	var b bytes.Buffer
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHANDLE\tPRIO\tSTATE\tSTACK\tRUNS")
	for _, t := range infos {
		fmt.Fprintf(tw, "%s\t%v\t%v\t%v\t%d\t%d\n", t.Name, t.Handle, t.Priority, t.State, t.StackBytes, runs[t.Handle])
	}
	tw.Flush()
	return b.String()
}

func (ss *session) queueNew(name string, depth, size uint32) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.queues[name]; ok {
		return fmt.Errorf("queue %q exists", name)
	}
	h, err := ss.s.QueueCreate(depth, size)
	if err != nil {
		return err
	}
	ss.queues[name] = namedQueue{h: h, size: size}
	return nil
}

func (ss *session) namedQueue(name string) (namedQueue, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	q, ok := ss.queues[name]
	if !ok {
		return namedQueue{}, fmt.Errorf("no queue %q", name)
	}
	return q, nil
}

func (ss *session) queue(name string) (osal.QueueHandle, error) {
	q, err := ss.namedQueue(name)
	return q.h, err
}

// queueSend sends text, zero-padded or cut to the item size.
func (ss *session) queueSend(ctx context.Context, name, text string, timeoutMS uint32) error {
	q, err := ss.namedQueue(name)
	if err != nil {
		return err
	}
	item := make([]byte, q.size)
	copy(item, text)
	return ss.s.QueueSend(ctx, q.h, item, timeoutMS)
}

func (ss *session) queueRecv(ctx context.Context, name string, timeoutMS uint32) (string, error) {
	q, err := ss.namedQueue(name)
	if err != nil {
		return "", err
	}
	out := make([]byte, q.size)
	if err := ss.s.QueueReceive(ctx, q.h, out, timeoutMS); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(out, "\x00")), nil
}

func (ss *session) queueReset(ctx context.Context, name string) error {
	h, err := ss.queue(name)
	if err != nil {
		return err
	}
	return ss.s.QueueReset(ctx, h)
}

func (ss *session) queueLen(name string) (waiting, spaces uint32, err error) {
	h, err := ss.queue(name)
	if err != nil {
		return 0, 0, err
	}
	return ss.s.QueueMessagesWaiting(h), ss.s.QueueSpacesAvailable(h), nil
}

func (ss *session) queueDelete(ctx context.Context, name string) error {
	h, err := ss.queue(name)
	if err != nil {
		return err
	}
	if err := ss.s.QueueDelete(ctx, h); err != nil {
		return err
	}
	ss.mu.Lock()
	delete(ss.queues, name)
	ss.mu.Unlock()
	return nil
}

func (ss *session) groupNew(name string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.groups[name]; ok {
		return fmt.Errorf("event group %q exists", name)
	}
	h, err := ss.s.EventGroupCreate()
	if err != nil {
		return err
	}
	ss.groups[name] = h
	return nil
}

func (ss *session) group(name string) (osal.EventGroupHandle, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	h, ok := ss.groups[name]
	if !ok {
		return osal.EventGroupHandle{}, fmt.Errorf("no event group %q", name)
	}
	return h, nil
}

func (ss *session) groupSet(ctx context.Context, name string, bits osal.EventBits) (osal.EventBits, error) {
	h, err := ss.group(name)
	if err != nil {
		return 0, err
	}
	return ss.s.EventGroupSetBits(ctx, h, bits)
}

func (ss *session) groupClear(name string, bits osal.EventBits) (osal.EventBits, error) {
	h, err := ss.group(name)
	if err != nil {
		return 0, err
	}
	return ss.s.EventGroupClearBits(h, bits)
}

func (ss *session) groupGet(name string) (osal.EventBits, error) {
	h, err := ss.group(name)
	if err != nil {
		return 0, err
	}
	return ss.s.EventGroupGetBits(h)
}

func (ss *session) groupWait(ctx context.Context, name string, bits osal.EventBits, all bool, timeoutMS uint32) (osal.EventBits, error) {
	h, err := ss.group(name)
	if err != nil {
		return 0, err
	}
	return ss.s.EventGroupWaitBits(ctx, h, bits, true, all, timeoutMS)
}

func (ss *session) groupDelete(ctx context.Context, name string) error {
	h, err := ss.group(name)
	if err != nil {
		return err
	}
	if err := ss.s.EventGroupDelete(ctx, h); err != nil {
		return err
	}
	ss.mu.Lock()
	delete(ss.groups, name)
	ss.mu.Unlock()
	return nil
}
