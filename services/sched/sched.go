// Package sched is the single-threaded event loop the sensor driver runs on.
// Timers live in a min-heap keyed by due time; callbacks and posted work all
// run on the goroutine that calls Run (or RunDue/Advance in tests), so the
// state they touch needs no locking.
package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"sen6x-go/x/timex"
)

// Scheduler is the subset of Loop that components depend on.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func())
	AfterNamed(name string, d time.Duration, fn func())
	Every(d time.Duration, name string, fn func())
	Cancel(name string)
}

type task struct {
	name  string
	fn    func()
	due   int64
	every time.Duration
	seq   uint64
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)   { t := x.(*task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	t.index = -1
	*h = old[:n-1]
	return t
}
func (h taskHeap) Top() *task {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Loop is a heap-backed timer loop.
type Loop struct {
	clock timex.Clock

	mu    sync.Mutex
	h     taskHeap
	named map[string]*task
	seq   uint64

	wake   chan struct{}
	posted chan func()
}

// New returns a Loop reading time from clock (timex.System if nil).
func New(clock timex.Clock) *Loop {
	if clock == nil {
		clock = timex.System{}
	}
	return &Loop{
		clock:  clock,
		named:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
		posted: make(chan func(), 32),
	}
}

func (l *Loop) Now() time.Time { return l.clock.Now() }

// After runs fn once, d from now.
func (l *Loop) After(d time.Duration, fn func()) { l.add("", d, 0, fn) }

// AfterNamed is After with a name so the timeout can be cancelled or
// replaced. An existing task with the same name is dropped.
func (l *Loop) AfterNamed(name string, d time.Duration, fn func()) { l.add(name, d, 0, fn) }

// Every runs fn each d, first after d. An existing task with the same name
// is replaced.
func (l *Loop) Every(d time.Duration, name string, fn func()) {
	if d <= 0 {
		return
	}
	l.add(name, d, d, fn)
}

// Cancel drops the named task if present.
func (l *Loop) Cancel(name string) {
	l.mu.Lock()
	if t := l.named[name]; t != nil {
		heap.Remove(&l.h, t.index)
		delete(l.named, name)
	}
	l.mu.Unlock()
	l.wakeup()
}

// Pending reports whether a named task is scheduled.
func (l *Loop) Pending(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.named[name] != nil
}

// Post queues fn to run on the loop goroutine. It is safe from any
// goroutine and returns false if the queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.posted <- fn:
		l.wakeup()
		return true
	default:
		return false
	}
}

func (l *Loop) add(name string, d, every time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	if name != "" {
		if old := l.named[name]; old != nil {
			heap.Remove(&l.h, old.index)
		}
	}
	l.seq++
	t := &task{
		name:  name,
		fn:    fn,
		due:   l.clock.Now().Add(d).UnixNano(),
		every: every,
		seq:   l.seq,
		index: -1,
	}
	if name != "" {
		l.named[name] = t
	}
	heap.Push(&l.h, t)
	l.mu.Unlock()
	l.wakeup()
}

// RunDue runs posted work and every task due at the current clock time,
// including tasks that become due while running. It returns how many
// callbacks ran.
func (l *Loop) RunDue() int {
	n := 0
	for {
		select {
		case fn := <-l.posted:
			fn()
			n++
			continue
		default:
		}
		t := l.popDue()
		if t == nil {
			return n
		}
		t.fn()
		n++
	}
}

func (l *Loop) popDue() *task {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now().UnixNano()
	top := l.h.Top()
	if top == nil || top.due > now {
		return nil
	}
	if top.every > 0 {
		top.due += int64(top.every)
		if top.due <= now {
			top.due = now + int64(top.every)
		}
		l.seq++
		top.seq = l.seq
		heap.Fix(&l.h, top.index)
		return top
	}
	heap.Pop(&l.h)
	if top.name != "" && l.named[top.name] == top {
		delete(l.named, top.name)
	}
	return top
}

// nextWait returns the time until the next task, or -1 if none.
func (l *Loop) nextWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	top := l.h.Top()
	if top == nil {
		return -1
	}
	if w := top.due - l.clock.Now().UnixNano(); w > 0 {
		return time.Duration(w)
	}
	return 0
}

// Run drives the loop in real time until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.RunDue()

		wait := l.nextWait()
		if wait < 0 {
			wait = time.Hour
		}
		timex.ResetTimer(timer, wait)
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// Advance moves a *timex.Manual clock forward by d, stopping at each due
// time on the way so callbacks observe the clock they were scheduled for.
// It panics with any other clock.
func (l *Loop) Advance(d time.Duration) int {
	m, ok := l.clock.(*timex.Manual)
	if !ok {
		panic("sched: Advance needs a *timex.Manual clock")
	}
	end := m.Now().Add(d).UnixNano()
	n := l.RunDue()
	for {
		l.mu.Lock()
		top := l.h.Top()
		due := int64(0)
		if top != nil {
			due = top.due
		}
		l.mu.Unlock()
		if top == nil || due > end {
			break
		}
		m.Set(time.Unix(0, due))
		n += l.RunDue()
	}
	m.Set(time.Unix(0, end))
	return n + l.RunDue()
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
