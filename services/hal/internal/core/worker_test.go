package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"sensorcode-go/errcode"
)

type counter struct{ seen []int }

func TestWorkerRunsJobsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &counter{}
	w := NewWorker("w", c, 8)
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		i := i
		if !w.TryEnqueue(JobFunc[*counter](func(c *counter) error {
			c.seen = append(c.seen, i)
			return nil
		})) {
			t.Fatalf("enqueue %d refused", i)
		}
	}
	// Do queues behind the others, so it observes all of them.
	var got []int
	err := w.Do(ctx, JobFunc[*counter](func(c *counter) error {
		got = append(got, c.seen...)
		return nil
	}))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d jobs", len(got))
	}
}

func TestWorkerQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	started := make(chan struct{})
	w := NewWorker("w", 0, 1)
	go w.Run(ctx)

	w.TryEnqueue(JobFunc[int](func(int) error {
		close(started)
		<-gate
		return nil
	}))
	<-started
	if !w.TryEnqueue(JobFunc[int](func(int) error { return nil })) {
		t.Fatal("queue of 1 refused first waiting job")
	}
	if w.TryEnqueue(JobFunc[int](func(int) error { return nil })) {
		t.Fatal("full queue accepted a job")
	}
	close(gate)
}

func TestWorkerDoReturnsJobError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker("w", 0, 0)
	go w.Run(ctx)

	boom := errors.New("boom")
	if err := w.Do(ctx, JobFunc[int](func(int) error { return boom })); err != boom {
		t.Fatalf("Do = %v, want boom", err)
	}
}

func TestWorkerStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker("w", 0, 0)
	go w.Run(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	if w.TryEnqueue(JobFunc[int](func(int) error { return nil })) {
		t.Fatal("stopped worker accepted a job")
	}
	err := w.Do(context.Background(), JobFunc[int](func(int) error { return nil }))
	if !errors.Is(err, errcode.Busy) {
		t.Fatalf("Do on stopped worker = %v", err)
	}
}
