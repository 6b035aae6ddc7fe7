package clock

import (
	"sync"
	"time"
)

// Fake is a Scheduler driven by Advance. Callbacks run on the caller's
// goroutine, outside the internal lock, so they may schedule or stop tasks.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

type fakeTask struct {
	f       *Fake
	next    time.Time
	period  time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTask) Stop() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.stopped = true
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration, fn func()) Task {
	return f.add(d, 0, fn)
}

func (f *Fake) Every(period time.Duration, fn func()) Task {
	return f.add(period, period, fn)
}

func (f *Fake) add(d, period time.Duration, fn func()) *fakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTask{f: f, next: f.now.Add(d), period: period, fn: fn}
	f.tasks = append(f.tasks, t)
	return t
}

// Advance moves virtual time forward by d, firing every task that comes
// due in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTask
		for _, t := range f.tasks {
			if t.stopped || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			f.now = target
			f.prune()
			f.mu.Unlock()
			return
		}
		f.now = due.next
		if due.period > 0 {
			due.next = due.next.Add(due.period)
		} else {
			due.stopped = true
		}
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending returns the number of tasks that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) prune() {
	live := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	f.tasks = live
}
