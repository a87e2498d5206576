package scheduler

import (
	"context"
	"time"

	"github.com/ibeckermayer/xsweep/internal/types"
	"github.com/ibeckermayer/xsweep/internal/worker"
)

// CleanupJobName is the name the scheduled cleanup run is registered under
const CleanupJobName = "cleanup"

// Runner is the part of worker.Controller a scheduled run needs. StartRun
// returns the done channel of the run it started, never of a later one.
type Runner interface {
	StartRun(cfg types.RunConfig) (<-chan struct{}, bool)
	Stop()
}

// CleanupJob starts a run with cfg and stops it after d, or earlier when the
// job's context ends. A run that stops on its own ends the job early. Fails with
// worker.ErrAlreadyRunning when a run is already active.
func CleanupJob(r Runner, cfg types.RunConfig, d time.Duration) Job {
	return func(ctx context.Context) error {
		done, ok := r.StartRun(cfg)
		if !ok {
			return worker.ErrAlreadyRunning
		}

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-done:
			return nil
		case <-timer.C:
		case <-ctx.Done():
		}
		r.Stop()
		<-done
		return nil
	}
}

// AddCleanupJob schedules CleanupJob. The job's own timeout leaves a minute
// past d for the run to wind down.
func (s *Scheduler) AddCleanupJob(schedule string, r Runner, cfg types.RunConfig, d time.Duration) error {
	return s.AddJob(CleanupJobName, schedule, d+time.Minute, CleanupJob(r, cfg, d))
}
