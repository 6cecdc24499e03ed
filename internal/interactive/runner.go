// Package interactive runs at most one user-initiated operation at a time.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

var (
	ErrBusy              = errors.New("another operation is already running")
	ErrForcedTermination = errors.New("operation did not stop within the grace period")
)

// Operation is one unit of interactive work. It must return promptly once
// ctx is cancelled.
type Operation func(ctx context.Context) (outcome.Result, error)

// Completion is delivered exactly once per started operation.
type Completion struct {
	Name     string
	Result   outcome.Result
	Err      error
	Stopped  bool
	Duration time.Duration
}

type Runner struct {
	mu     sync.Mutex
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Start launches op on its own goroutine. The returned channel receives the
// completion and is then closed.
func (r *Runner) Start(parent context.Context, name string, op Operation) (<-chan Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return nil, fmt.Errorf("%w: %s", ErrBusy, r.name)
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	out := make(chan Completion, 1)
	r.name = name
	r.cancel = cancel
	r.done = done

	log := r.logger.With(zap.String("operation", name))
	log.Info("operation started")
	go func() {
		started := time.Now()
		completion := Completion{Name: name}
		defer func() {
			if rec := recover(); rec != nil {
				completion.Err = fmt.Errorf("operation panicked: %v", rec)
			}
			cancel()
			completion.Duration = time.Since(started)
			completion.Stopped = completion.Result.Status == outcome.Cancelled || outcome.IsCancelled(completion.Err)
			r.finish(done)
			if completion.Stopped {
				log.Info("operation stopped by user", zap.Duration("duration", completion.Duration))
			} else {
				log.Info("operation finished", zap.String("status", string(completion.Result.Status)), zap.Error(completion.Err))
			}
			out <- completion
			close(out)
		}()
		completion.Result, completion.Err = op(ctx)
	}()
	return out, nil
}

func (r *Runner) finish(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == done {
		r.name = ""
		r.cancel = nil
		r.done = nil
	}
	close(done)
}

// Busy reports the name of the running operation, if any.
func (r *Runner) Busy() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name, r.done != nil
}

// Cancel signals the running operation to stop. It reports whether there was
// one to signal.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Shutdown cancels the running operation and waits up to grace for it to
// return. The caller is expected to exit on ErrForcedTermination.
func (r *Runner) Shutdown(grace time.Duration) error {
	r.mu.Lock()
	done, cancel, name := r.done, r.cancel, r.name
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		r.logger.Warn("operation ignored cancellation", zap.String("operation", name), zap.Duration("grace", grace))
		return fmt.Errorf("%w: %s", ErrForcedTermination, name)
	}
}
