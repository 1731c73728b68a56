package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Runner schedules periodic sweeps inside the process. Overlapping runs are
// suppressed: if a sweep is still going when the next tick fires, the tick
// is skipped rather than queued.
type Runner struct {
	sweeper  *Sweeper
	cron     *cron.Cron
	log      *slog.Logger
	schedule string
	running  atomic.Bool
}

// NewRunner creates a Runner with a cron schedule expression, e.g.
// "@hourly" or "15 * * * *".
func NewRunner(s *Sweeper, schedule string, log *slog.Logger) *Runner {
	if s == nil {
		panic("sweeper: sweeper is required")
	}
	if schedule == "" {
		schedule = "@hourly"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		sweeper:  s,
		cron:     cron.New(),
		log:      log,
		schedule: schedule,
	}
}

// Start registers the sweep job and starts the scheduler. The context bounds
// each individual sweep run, not the scheduler's lifetime; call Stop to shut
// the scheduler down.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if !r.running.CompareAndSwap(false, true) {
			r.log.WarnContext(ctx, "previous sweep still running, skipping tick")
			return
		}
		defer r.running.Store(false)

		summary, err := r.sweeper.Sweep(ctx)
		if err != nil {
			r.log.ErrorContext(ctx, "scheduled sweep failed",
				slog.Int("processed", summary.Processed),
				slog.Int("failed", summary.Failed),
				slog.String("error", err.Error()))
			return
		}
		if summary.Processed > 0 || summary.Failed > 0 {
			r.log.InfoContext(ctx, "scheduled sweep completed",
				slog.Int("processed", summary.Processed),
				slog.Int("failed", summary.Failed))
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop shuts the scheduler down and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}
