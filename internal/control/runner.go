package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

// Runner re-invokes Adjust every interval until stopped. A failed
// adjustment is reported and the next one runs on schedule.
type Runner struct {
	ctrl     *Controller
	interval time.Duration
	logger   logger.Logger

	onResult func(Result)
	onError  func(error)

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewRunner(ctrl *Controller, interval time.Duration, log logger.Logger) *Runner {
	return &Runner{
		ctrl:     ctrl,
		interval: interval,
		logger:   log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnResult sets the callback for successful adjustments. Call before Start.
func (r *Runner) OnResult(fn func(Result)) {
	r.onResult = fn
}

// OnError sets the callback for failed adjustments. Call before Start.
func (r *Runner) OnError(fn func(error)) {
	r.onError = fn
}

func (r *Runner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, r.interval.String())
	}
	if !r.started.CompareAndSwap(false, true) {
		return errors.New().WithMessage(errors.ErrInternal, "controller runner already started")
	}

	go r.run(ctx)
	return nil
}

// Stop waits for an in-flight adjustment to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started.Load() {
		<-r.done
	}
}

func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		res, err := r.ctrl.Adjust(ctx)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Msg("Fan adjustment failed")
			if r.onError != nil {
				r.onError(err)
			}
		case r.onResult != nil:
			r.onResult(res)
		}

		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
		}
	}
}
