// Package tasks runs best-effort work decoupled from the request that
// triggered it. A task failure is logged and swallowed; it must never fail
// the write that submitted it.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a unit of deferred work.
type Task func(ctx context.Context) error

// Runner dispatches tasks on background goroutines. Submit never blocks and
// never returns an error to the caller.
type Runner struct {
	log     zerolog.Logger
	timeout time.Duration
	sync    bool

	wg sync.WaitGroup
}

// NewRunner creates an asynchronous runner. Each task gets its own context
// with the given timeout (0 means no timeout).
func NewRunner(log zerolog.Logger, timeout time.Duration) *Runner {
	return &Runner{log: log, timeout: timeout}
}

// NewSyncRunner creates a runner that executes tasks inline. Used by tests so
// submitted work completes before assertions run.
func NewSyncRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log, sync: true}
}

// Submit schedules a named task. Failures are logged at error level with the
// task name; nothing is reported back to the submitter.
func (r *Runner) Submit(name string, task Task) {
	if r.sync {
		r.run(name, task)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(name, task)
	}()
}

func (r *Runner) run(name string, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("task", name).Interface("panic", rec).Msg("task panicked")
		}
	}()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := task(ctx); err != nil {
		r.log.Error().Str("task", name).Dur("elapsed", time.Since(start)).Err(err).
			Msg("background task failed")
		return
	}
	r.log.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("background task done")
}

// Wait blocks until all in-flight tasks finish. Called during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
