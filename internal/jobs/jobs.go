// Package jobs runs periodic maintenance. Jobs never change state on their
// own: the project sweep only triggers the ledger's lazy expiry, and the
// draft sweep only drops drafts that have already expired.
package jobs

import (
	"context"
	"log/slog"
	"time"

	campaignModels "fundly/internal/campaign/models"
)

const defaultJobTimeout = 2 * time.Minute

// ProjectLedger lists projects with due automatic transitions applied.
type ProjectLedger interface {
	ListProjects(ctx context.Context) ([]*campaignModels.Project, error)
}

// DraftSweeper drops expired drafts. Only in-process stores need it; Redis
// expires drafts by itself.
type DraftSweeper interface {
	Sweep(ctx context.Context) int
}

type Jobs struct {
	ledger  ProjectLedger
	drafts  DraftSweeper
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Jobs)

func WithDraftSweeper(d DraftSweeper) Option {
	return func(j *Jobs) {
		j.drafts = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(j *Jobs) {
		j.timeout = d
	}
}

func New(ledger ProjectLedger, logger *slog.Logger, opts ...Option) *Jobs {
	j := &Jobs{ledger: ledger, logger: logger, timeout: defaultJobTimeout}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SweepProjects reads every project through the ledger and returns how many
// are now expired.
func (j *Jobs) SweepProjects(ctx context.Context) (int, error) {
	projects, err := j.ledger.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, p := range projects {
		if p.Status == campaignModels.ProjectStatusExpired {
			expired++
		}
	}
	return expired, nil
}

// RunProjectSweep is the cron entry point for SweepProjects.
func (j *Jobs) RunProjectSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	expired, err := j.SweepProjects(ctx)
	if err != nil {
		j.logger.Error("project expiry sweep failed", "error", err)
		return
	}
	j.logger.Info("project expiry sweep finished",
		"expired_projects", expired,
		"duration", time.Since(start),
	)
}

// RunDraftSweep is the cron entry point for the draft store sweep.
func (j *Jobs) RunDraftSweep() {
	if j.drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if removed := j.drafts.Sweep(ctx); removed > 0 {
		j.logger.Info("expired drafts removed", "count", removed)
	}
}
