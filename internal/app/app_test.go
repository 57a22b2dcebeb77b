package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	campaignModels "fundly/internal/campaign/models"
	"fundly/internal/notify"
	"fundly/internal/platform/config"
	"fundly/internal/receipt"
	"fundly/pkg/requestcontext"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmptyConfigSelectsMemoryBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	stores, closeStores, err := OpenStores(ctx, cfg, discard())
	require.NoError(t, err)
	defer closeStores()
	assert.Equal(t, "memory", stores.Backend)
	assert.Nil(t, stores.Health)

	drafts, closeDrafts, err := OpenDrafts(ctx, cfg)
	require.NoError(t, err)
	defer closeDrafts()
	assert.NotNil(t, drafts.Sweeper)

	receipts, err := OpenReceipts(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &receipt.MemoryStore{}, receipts)

	notifier, closeNotifier, err := OpenNotifier(ctx, cfg, discard(), nil)
	require.NoError(t, err)
	assert.NoError(t, notifier.Notify(ctx, notify.Event{Type: notify.TypeDonationCreated, DonationID: "d-1"}))
	closeNotifier()
	assert.ErrorIs(t, notifier.Notify(ctx, notify.Event{}), notify.ErrDispatcherClosed)
}

func TestCoreIsWired(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	stores, closeStores, err := OpenStores(ctx, &config.Config{}, discard())
	require.NoError(t, err)
	defer closeStores()

	core := NewCore(stores, discard(), nil, nil)
	p, err := core.Ledger.CreateProject(ctx, &campaignModels.CreateProjectRequest{
		Title: "Library roof", GoalAmount: 1000, EndDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := core.Ledger.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, campaignModels.ProjectStatusActive, got.Status)

	dist, err := core.Records.Distribution(ctx, &p.ID)
	require.NoError(t, err)
	assert.Empty(t, dist.ByStatus)
}
