// Package dispatcher runs the worker pool and waits for every member to finish.
package dispatcher

import (
	"context"
	"errors"
	"sync"
)

// Runner is one member of the pool.
type Runner interface {
	Run(ctx context.Context) error
}

// Dispatcher fans work out to a fixed pool of workers.
type Dispatcher struct {
	workers []Runner
}

// New creates a Dispatcher for workers.
func New(workers ...Runner) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Size reports the pool size.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until every one has returned. Worker
// errors are joined; a failing worker does not stop the others.
func (d *Dispatcher) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return errors.Join(errs...)
}
