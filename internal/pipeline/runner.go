package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"signin-token-sync/internal/models"
)

// Job is anything that performs one sync run
type Job interface {
	Run(ctx context.Context) models.Result
}

// Runner starts detached runs, at most one at a time
type Runner struct {
	job     Job
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewRunner wraps job with a single-flight guard
func NewRunner(job Job) *Runner {
	return &Runner{job: job}
}

// TryStart launches a run in the background. It returns false without starting anything while a run is in flight.
func (r *Runner) TryStart(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.job.Run(ctx)
	}()
	return true
}

// Running reports whether a run is in flight
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Wait blocks until the in-flight run, if any, has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}
