package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

// BatchFailure is one item a batch job could not process.
type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchReport summarizes a background batch run.
type BatchReport struct {
	Job            string         `json:"job"`
	Processed      int            `json:"processed"`
	RecordsWritten int            `json:"records_written"`
	RecordsRemoved int            `json:"records_removed"`
	Failures       []BatchFailure `json:"failures"`
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration"`
}

// Failed returns the number of items that failed.
func (r *BatchReport) Failed() int {
	return len(r.Failures)
}

// batchCollector lets concurrent jobs add to one report.
type batchCollector struct {
	mu     sync.Mutex
	report BatchReport
}

func newBatchCollector(job string, now time.Time) *batchCollector {
	return &batchCollector{report: BatchReport{Job: job, StartedAt: now, Failures: []BatchFailure{}}}
}

func (c *batchCollector) success(written, removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Processed++
	c.report.RecordsWritten += written
	c.report.RecordsRemoved += removed
}

func (c *batchCollector) failure(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Processed++
	c.report.Failures = append(c.report.Failures, BatchFailure{ID: id, Error: err.Error()})
}

func (c *batchCollector) finish(now time.Time) *BatchReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.report
	r.Duration = now.Sub(r.StartedAt)
	return &r
}

// fanOut runs fn for every id on the pool and waits for all of them. Items
// the pool refuses and items that panic are recorded as failures.
func fanOut(ctx context.Context, pool *workerpool.Pool, ids []string, c *batchCollector, fn func(ctx context.Context, id string) (int, int, error)) {
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		err := pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.failure(id, fmt.Errorf("panic: %v", r))
				}
			}()
			written, removed, err := fn(ctx, id)
			if err != nil {
				c.failure(id, err)
				return
			}
			c.success(written, removed)
		})
		if err != nil {
			wg.Done()
			c.failure(id, err)
		}
	}
	wg.Wait()
}
