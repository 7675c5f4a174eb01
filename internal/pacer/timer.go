// Package pacer fires a task a fixed number of times at a wall-clock
// anchored schedule, self-correcting for the previous invocation's
// duration so the schedule itself never drifts.
//
// Translated from _examples/original_source/timer.h's Timer class
// (prepare/task/interval/n, start()/stop()) into a goroutine driven by a
// monotonic clock and a context.Context, the cancellation idiom the
// teacher itself uses (internal/worker/pool.go's ctx/cancel pair) in place
// of the original's std::thread + std::atomic<bool>.
package pacer

import (
	"context"
	"time"
)

// Run executes prepare() once, then task(i) exactly n times, with
// successive nominal deadlines start, start+interval, start+2*interval, ....
// Each call to task happens at or after its nominal deadline; jitter in one
// call's duration is never carried into the next deadline, because every
// deadline is computed from start, not from the previous call's return
// time.
//
// Run returns nil after all n repetitions complete, or ctx.Err() if ctx is
// canceled first. Cancellation is observed between repetitions (at "slot
// boundaries"), never in the middle of a task call.
func Run(ctx context.Context, prepare func(), task func(i int), start time.Time, interval time.Duration, n int) error {
	prepare()

	// sleepUntil anchors every wake-up to the wall-clock deadline rather
	// than to time.Sleep(interval) repeated, which would accumulate the
	// previous call's duration as drift.
	sleepUntil := func(deadline time.Time) error {
		d := time.Until(deadline)
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := 0; i < n; i++ {
		deadline := start.Add(time.Duration(i) * interval)
		if err := sleepUntil(deadline); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		task(i)
	}
	return nil
}
