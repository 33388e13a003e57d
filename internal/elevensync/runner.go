package elevensync

import (
	"context"
	"errors"
	"time"
)

const defaultRunnerInterval = 24 * time.Hour

// Runner triggers sync cycles on a fixed interval until its context is
// cancelled. The on-demand trigger endpoint shares the orchestrator, so
// an interval cycle and a manual one can never overlap.
type Runner struct {
	Orchestrator *Orchestrator
	Interval     time.Duration
	Logf         func(string, ...any)
}

func NewRunner(orchestrator *Orchestrator, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = defaultRunnerInterval
	}
	return &Runner{
		Orchestrator: orchestrator,
		Interval:     interval,
		Logf:         orchestrator.Logf,
	}
}

func (r *Runner) Start(ctx context.Context) {
	for {
		summary, err := r.Orchestrator.RunCycle(ctx)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			// A manual trigger beat us to it; try again next interval.
		case err != nil:
			r.logf("sync cycle finished with errors (total=%d new=%d updated=%d skipped=%d failed=%d): %v",
				summary.Total, summary.New, summary.Updated, summary.Skipped, summary.Failed, err)
		default:
			r.logf("sync cycle complete: total=%d new=%d updated=%d skipped=%d",
				summary.Total, summary.New, summary.Updated, summary.Skipped)
		}

		if err := sleepWithContext(ctx, r.Interval); err != nil {
			return
		}
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
