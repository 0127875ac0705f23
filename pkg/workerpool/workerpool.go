// Package workerpool runs background jobs on a fixed set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job is a unit of work. The context is the one passed to Submit.
type Job func(ctx context.Context)

type task struct {
	ctx context.Context
	job Job
}

// Pool is a fixed-size worker pool with a bounded queue.
//
// Thread Safety: Safe for concurrent use.
type Pool struct {
	tasks   chan task
	logger  *logger.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	workers int
}

// New starts a pool with the given number of workers and queue capacity.
func New(workers, queueSize int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		tasks:   make(chan task, queueSize),
		logger:  log.WithComponent("workerpool"),
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run(i)
	}

	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues job, blocking while the queue is full. It fails with
// ErrPoolClosed once Shutdown has started, or with ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task{ctx: ctx, job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued and running jobs to finish.
// It returns ctx.Err() if ctx ends before the pool has drained.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.execute(id, t)
	}
}

func (p *Pool) execute(id int, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Interface("panic", r).
				Msg("job panicked")
		}
	}()
	t.job(t.ctx)
}
