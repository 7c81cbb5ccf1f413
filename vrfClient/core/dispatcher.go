package core

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/pushchain/push-vrf-node/vrfClient/metrics"
)

// Dispatcher runs pipeline tasks concurrently. With a positive limit, Go
// blocks the caller while limit tasks are running.
type Dispatcher struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher; limit 0 means unbounded.
func NewDispatcher(limit int, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{metrics: m}
	if limit > 0 {
		d.sem = semaphore.NewWeighted(int64(limit))
	}
	return d
}

// Go starts task in its own goroutine. It returns ctx.Err() without running
// the task when ctx ends while waiting for a slot.
func (d *Dispatcher) Go(ctx context.Context, task func(ctx context.Context)) error {
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	d.wg.Add(1)
	d.metrics.TaskStarted()
	go func() {
		defer func() {
			d.metrics.TaskDone()
			if d.sem != nil {
				d.sem.Release(1)
			}
			d.wg.Done()
		}()
		task(ctx)
	}()
	return nil
}

// Wait blocks until every started task has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
