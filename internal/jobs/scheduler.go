package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 15m"

// Scheduler owns the cron runner for the maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *slog.Logger
	schedule string
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the runner. An invalid schedule is an
// error rather than a silently missing job.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.RunProjectSweep); err != nil {
		return fmt.Errorf("schedule project sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.RunDraftSweep); err != nil {
		return fmt.Errorf("schedule draft sweep: %w", err)
	}
	s.logger.Info("scheduled maintenance jobs", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
