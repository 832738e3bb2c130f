package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	pool.Stop()

	if got := ran.Load(); got != 5 {
		t.Errorf("expected 5 jobs to run, got %d", got)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(1, 1)
	// Not started: nothing drains the queue.
	if err := pool.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit should fit: %v", err)
	}
	if err := pool.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if pool.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", pool.QueueDepth())
	}
}

func TestPoolSurvivesPanicsAndErrors(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()

	done := make(chan struct{})
	pool.Submit(func(ctx context.Context) error { panic("boom") })
	pool.Submit(func(ctx context.Context) error { return errors.New("job error") })
	pool.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panicking job")
	}
	pool.Stop()
}

func TestSubmitAfterStopReturnsError(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()
	pool.Stop()

	err := pool.Submit(func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	pool := NewPool(1, 8)
	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	pool.Start()
	pool.Stop()

	if got := ran.Load(); got != 4 {
		t.Errorf("Stop should drain queued jobs, ran %d of 4", got)
	}
}
