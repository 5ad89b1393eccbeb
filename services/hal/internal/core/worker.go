package core

import (
	"context"

	"sensorcode-go/errcode"
	"sensorcode-go/x/console"
)

const defaultWorkerQueue = 8

// Job is one unit of work against a resource of type R.
type Job[R any] interface {
	Run(res R) error
}

// JobFunc adapts a function to Job.
type JobFunc[R any] func(res R) error

func (f JobFunc[R]) Run(res R) error { return f(res) }

// Worker owns a resource and runs queued jobs against it one at a time, so
// transactions on one bus never interleave.
type Worker[R any] struct {
	id   string
	res  R
	jobs chan Job[R]
	done chan struct{}
	log  console.Logger
}

// NewWorker creates a stopped worker; call Run to start it.
func NewWorker[R any](id string, res R, depth int) *Worker[R] {
	if depth <= 0 {
		depth = defaultWorkerQueue
	}
	return &Worker[R]{
		id:   id,
		res:  res,
		jobs: make(chan Job[R], depth),
		done: make(chan struct{}),
		log:  console.Logger("worker"),
	}
}

func (w *Worker[R]) ID() string { return w.id }

// Done is closed once Run has returned.
func (w *Worker[R]) Done() <-chan struct{} { return w.done }

// TryEnqueue queues j without blocking. False when the queue is full or the
// worker has stopped.
func (w *Worker[R]) TryEnqueue(j Job[R]) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.jobs <- j:
		return true
	default:
		return false
	}
}

// Do queues j and waits for it to finish.
func (w *Worker[R]) Do(ctx context.Context, j Job[R]) error {
	s := &syncJob[R]{j: j, done: make(chan error, 1)}
	select {
	case w.jobs <- s:
	case <-w.done:
		return errcode.Busy
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-s.done:
		return err
	case <-w.done:
		return errcode.Busy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes jobs until ctx is cancelled.
func (w *Worker[R]) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			if err := j.Run(w.res); err != nil {
				w.log.Println(w.id, "job failed:", err)
			}
		}
	}
}

type syncJob[R any] struct {
	j    Job[R]
	done chan error
}

func (s *syncJob[R]) Run(res R) error {
	s.done <- s.j.Run(res)
	return nil
}
