package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	campaignModels "fundly/internal/campaign/models"
	campaignService "fundly/internal/campaign/service"
	campaignStore "fundly/internal/campaign/store"
	id "fundly/pkg/domain"
	"fundly/pkg/requestcontext"
)

type noFunding struct{}

func (noFunding) ProjectFunding(context.Context, id.ProjectID) (campaignModels.Funding, error) {
	return campaignModels.Funding{}, nil
}

type failingLedger struct{}

func (failingLedger) ListProjects(context.Context) ([]*campaignModels.Project, error) {
	return nil, errors.New("db down")
}

type countingSweeper struct{ calls int }

func (c *countingSweeper) Sweep(context.Context) int {
	c.calls++
	return 2
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepProjectsPersistsExpiry(t *testing.T) {
	store := campaignStore.NewInMemoryStore()
	ledger := campaignService.New(store, noFunding{})
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), created)

	short, err := ledger.CreateProject(ctx, &campaignModels.CreateProjectRequest{Title: "short", GoalAmount: 100, EndDate: created.AddDate(0, 0, 2)})
	require.NoError(t, err)
	_, err = ledger.CreateProject(ctx, &campaignModels.CreateProjectRequest{Title: "long", GoalAmount: 100, EndDate: created.AddDate(0, 2, 0)})
	require.NoError(t, err)

	later := requestcontext.WithTime(context.Background(), created.AddDate(0, 0, 5))
	expired, err := New(ledger, discardLogger()).SweepProjects(later)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := store.FindByID(context.Background(), short.ID)
	require.NoError(t, err)
	assert.Equal(t, campaignModels.ProjectStatusExpired, stored.Status)
}

func TestSweepProjectsPropagatesErrors(t *testing.T) {
	_, err := New(failingLedger{}, discardLogger()).SweepProjects(context.Background())
	assert.Error(t, err)
}

func TestRunDraftSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	j := New(failingLedger{}, discardLogger(), WithDraftSweeper(sweeper))
	j.RunDraftSweep()
	assert.Equal(t, 1, sweeper.calls)

	New(failingLedger{}, discardLogger()).RunDraftSweep()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(New(failingLedger{}, discardLogger()), discardLogger(), "not a schedule")
	assert.Error(t, s.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(New(failingLedger{}, discardLogger()), discardLogger(), "")
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}
