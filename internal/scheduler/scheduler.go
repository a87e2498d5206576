package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location
	logger   *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a new scheduler firing in the given location
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})),
	)
	base, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     c,
		timezone: loc,
		logger:   logger,
		base:     base,
		cancel:   cancel,
		jobs:     make(map[string]cron.EntryID),
	}
}

// AddJob adds a job with a cron schedule. Each firing gets a context that ends
// after timeout or when the scheduler stops. A firing is skipped while the
// previous one is still running.
// schedule format: "0 3 * * *" (at 3:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, timeout time.Duration, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(s.base, timeout)
		defer cancel()
		s.run(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info("Added job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	s.logger.Info("Starting job", zap.String("job", name))
	start := time.Now()

	if err := job(ctx); err != nil {
		s.logger.Warn("Job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("Job completed", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("Removed job", zap.String("job", name))
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", zap.String("timezone", s.timezone.String()))
	s.cron.Start()
}

// Stop halts the scheduler and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	return s.cron.Stop()
}

// RunNow immediately executes a job outside the schedule
func (s *Scheduler) RunNow(name string, timeout time.Duration, job Job) error {
	ctx, cancel := context.WithTimeout(s.base, timeout)
	defer cancel()

	s.logger.Info("Running job now", zap.String("job", name))
	return job(ctx)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}
	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// cronLogger adapts zap to cron's logger interface
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
