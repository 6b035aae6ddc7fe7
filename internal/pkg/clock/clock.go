// Package clock provides cancellable scheduled tasks so components can own
// their timers explicitly and tests can drive them with virtual time.
package clock

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Stop cancels the task. Stopping an already stopped task is a no-op.
	Stop()
}

// Scheduler creates tasks.
type Scheduler interface {
	// Every calls fn once per period until the task is stopped. Calls never
	// overlap.
	Every(period time.Duration, fn func()) Task
	// After calls fn once after d unless the task is stopped first.
	After(d time.Duration, fn func()) Task
	Now() time.Time
}

// Real schedules on the wall clock.
type Real struct{}

func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) After(d time.Duration, fn func()) Task {
	return timerTask{timer: time.AfterFunc(d, fn)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Stop() {
	t.timer.Stop()
}

func (Real) Every(period time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				// a stop issued from a previous tick wins over a queued tick
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
