// Package scheduler abstracts repeating and deferred callbacks so timer-driven
// code can be driven deterministically in tests.
package scheduler

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It is safe to call more than once.
type Cancel func()

type Scheduler interface {
	Every(interval time.Duration, fn func()) Cancel
	After(delay time.Duration, fn func()) Cancel
}

// Runtime schedules callbacks on goroutines backed by the time package.
type Runtime struct{}

func (Runtime) Every(interval time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (Runtime) After(delay time.Duration, fn func()) Cancel {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}
