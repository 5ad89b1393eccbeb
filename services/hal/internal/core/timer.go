package core

import (
	"time"

	"sensorcode-go/x/timex"
)

// WorkerTimer runs periodic ticks on a resource worker so they serialise with
// every other job on that resource. It satisfies ds18b20.Timer.
type WorkerTimer[R any] struct {
	W      *Worker[R]
	Period time.Duration
}

// Start schedules tick every Period until it returns false or the worker
// stops. A tick that finds the queue full is retried on the next period.
func (t WorkerTimer[R]) Start(tick func() bool) bool {
	if t.W == nil || t.Period <= 0 {
		return false
	}
	select {
	case <-t.W.Done():
		return false
	default:
	}
	timex.Repeat(t.Period, func() bool {
		j := &tickJob[R]{tick: tick, again: make(chan bool, 1)}
		if !t.W.TryEnqueue(j) {
			return true
		}
		select {
		case again := <-j.again:
			return again
		case <-t.W.Done():
			return false
		}
	})
	return true
}

type tickJob[R any] struct {
	tick  func() bool
	again chan bool
}

func (j *tickJob[R]) Run(R) error {
	j.again <- j.tick()
	return nil
}
