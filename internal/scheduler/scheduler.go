// Package scheduler drives the periodic decision cycle. Exactly one cycle
// runs at a time: a tick that arrives while the previous cycle is still
// working is skipped and counted, never queued.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// CycleFunc is one engine cycle. The error is logged, never fatal: the next
// tick runs regardless.
type CycleFunc func(ctx context.Context) error

// Runner executes a CycleFunc on a fixed interval with single-flight
// semantics.
type Runner struct {
	interval time.Duration
	fn       CycleFunc
	log      zerolog.Logger

	running atomic.Bool
	skipped atomic.Int64
	onSkip  func()
}

// NewRunner creates an interval runner.
func NewRunner(interval time.Duration, fn CycleFunc, log zerolog.Logger) *Runner {
	return &Runner{
		interval: interval,
		fn:       fn,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// OnSkip registers a callback fired whenever a tick is skipped. Used to
// bump the skipped-cycles metric.
func (r *Runner) OnSkip(fn func()) { r.onSkip = fn }

// Skipped returns the number of ticks dropped because a cycle was running.
func (r *Runner) Skipped() int64 { return r.skipped.Load() }

// Run executes one cycle immediately, then one per interval until the
// context is cancelled. It blocks until the final in-flight cycle finishes.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	launch := func() {
		if !r.running.CompareAndSwap(false, true) {
			r.skipped.Add(1)
			if r.onSkip != nil {
				r.onSkip()
			}
			r.log.Warn().Int64("skipped_total", r.skipped.Load()).
				Msg("cycle still running, tick skipped")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.running.Store(false)
			started := time.Now()
			if err := r.fn(ctx); err != nil {
				r.log.Error().Err(err).Dur("elapsed", time.Since(started)).
					Msg("cycle failed")
			}
		}()
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			launch()
		}
	}
}
