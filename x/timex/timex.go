package timex

import (
	"sync"
	"time"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// NowNs returns Unix nanoseconds as int64.
func NowNs() int64 { return time.Now().UnixNano() }

// Repeat calls fn every period, starting one period from now, until fn
// returns false or stop is called. Calls never overlap.
func Repeat(period time.Duration, fn func() bool) (stop func()) {
	r := &repeater{period: period, fn: fn}
	r.mu.Lock()
	r.t = time.AfterFunc(period, r.fire)
	r.mu.Unlock()
	return r.stop
}

type repeater struct {
	mu      sync.Mutex
	period  time.Duration
	fn      func() bool
	t       *time.Timer
	stopped bool
}

func (r *repeater) fire() {
	again := r.fn()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !again {
		r.stopped = true
	}
	if r.stopped {
		return
	}
	r.t.Reset(r.period)
}

func (r *repeater) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.t.Stop()
}
