// Package worker provides the bounded job queue that runs review pipelines
// off the webhook request path.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"pr-review-hub/internal/metrics"
)

// Job is a unit of work executed by the pool.
type Job func(ctx context.Context) error

// ErrQueueFull is returned when the job queue is full.
var ErrQueueFull = errors.New("worker pool queue is full")

// ErrPoolStopped is returned when jobs are submitted after Stop.
var ErrPoolStopped = errors.New("worker pool is stopped")

// Pool runs jobs on a fixed set of workers fed from a bounded queue.
// Submit never blocks; when the queue is full the caller gets ErrQueueFull
// and decides how to degrade.
type Pool struct {
	queue   chan Job
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Pool) Start() {
	slog.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.queue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, drains the remaining jobs and waits for the
// workers to finish.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool")
	p.mu.Lock()
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
	slog.Info("worker pool stopped")
}

// Submit enqueues a job. The read lock keeps the send out of the window
// where Stop closes the queue, so a late Submit gets ErrPoolStopped
// instead of a send on a closed channel.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- job:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth reports the number of jobs waiting to run.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		metrics.QueueDepth.Set(float64(len(p.queue)))
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in worker", "worker_id", id, "panic", r)
				}
			}()
			if err := job(p.ctx); err != nil {
				slog.Error("job execution failed", "worker_id", id, "error", err)
			}
		}()
	}
}
