// Package app assembles the fundraising services from configuration. Every
// external backend is optional: an unset setting selects the in-memory
// implementation, so a bare checkout runs with no infrastructure.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	campaignService "fundly/internal/campaign/service"
	campaignStore "fundly/internal/campaign/store"
	donationService "fundly/internal/donation/service"
	donationStore "fundly/internal/donation/store"
	donorService "fundly/internal/donor/service"
	donorStore "fundly/internal/donor/store"
	"fundly/internal/notify"
	"fundly/internal/platform/config"
	"fundly/internal/platform/metrics"
	"fundly/internal/platform/postgres"
	platformredis "fundly/internal/platform/redis"
	"fundly/internal/receipt"
	"fundly/internal/wizard/ports"
	wizardStore "fundly/internal/wizard/store"
)

const notifyDrainTimeout = 10 * time.Second

// DonationStore is the donation table together with the aggregate queries
// the ledger and directory recompute from.
type DonationStore interface {
	donationService.Store
	campaignService.FundingSource
	donorService.TotalsSource
}

// Stores are the systems of record.
type Stores struct {
	Projects  campaignService.Store
	Donors    donorService.Store
	Donations DonationStore
	Backend   string
	Health    func(ctx context.Context) error
}

// Core is the ledger, directory and record store wired together.
type Core struct {
	Ledger    *campaignService.Service
	Directory *donorService.Service
	Records   *donationService.Service
}

// closers runs cleanup in reverse registration order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// OpenStores connects postgres when DATABASE_URL is set and applies the
// schema; otherwise it returns memory stores.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.InfoContext(ctx, "using in-memory stores")
		donations := donationStore.NewInMemoryStore()
		return &Stores{
			Projects:  campaignStore.NewInMemoryStore(),
			Donors:    donorStore.NewInMemoryStore(),
			Donations: donations,
			Backend:   "memory",
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.InfoContext(ctx, "using postgres stores")
	return &Stores{
		Projects:  campaignStore.NewPostgres(pool),
		Donors:    donorStore.NewPostgres(pool),
		Donations: donationStore.NewPostgres(pool),
		Backend:   "postgres",
		Health:    pool.Ping,
	}, pool.Close, nil
}

// NewCore wires the three record services. notifier may be nil.
func NewCore(stores *Stores, logger *slog.Logger, m *metrics.Metrics, notifier donationService.Notifier) *Core {
	ledger := campaignService.New(stores.Projects, stores.Donations,
		campaignService.WithLogger(logger),
		campaignService.WithMetrics(m),
	)
	directory := donorService.New(stores.Donors, stores.Donations,
		donorService.WithLogger(logger),
		donorService.WithMetrics(m),
	)
	opts := []donationService.Option{
		donationService.WithLogger(logger),
		donationService.WithMetrics(m),
	}
	if notifier != nil {
		opts = append(opts, donationService.WithNotifier(notifier))
	}
	records := donationService.New(stores.Donations, ledger, directory, opts...)
	return &Core{Ledger: ledger, Directory: directory, Records: records}
}

// OpenNotifier always logs events and additionally publishes them to Kafka
// and RabbitMQ when those are configured. Sinks sit behind a dispatcher, so
// callers never wait on a broker; cleanup drains the queue first.
func OpenNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*notify.Dispatcher, func(), error) {
	var cleanup closers
	fan := notify.NewFanOut(notify.WithLogger(logger), notify.WithMetrics(m))
	fan.Add("log", notify.NewLogSink(logger))

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		sink, err := notify.NewKafkaSink(ctx, brokers, cfg.KafkaTopic)
		if err != nil {
			cleanup.Close()
			return nil, nil, fmt.Errorf("kafka notifier: %w", err)
		}
		cleanup.add(sink.Close)
		fan.Add("kafka", sink)
	}
	if cfg.RabbitMQURL != "" {
		sink, err := notify.NewRabbitMQSink(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			cleanup.Close()
			return nil, nil, fmt.Errorf("rabbitmq notifier: %w", err)
		}
		cleanup.add(func() { _ = sink.Close() })
		fan.Add("rabbitmq", sink)
	}

	dispatcher := notify.NewDispatcher(fan, notify.DispatcherConfig{
		QueueSize: cfg.NotifyQueueSize,
		Timeout:   cfg.NotifyTimeout,
		Logger:    logger,
		Metrics:   m,
	})
	cleanup.add(func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyDrainTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.WarnContext(drainCtx, "notification queue not drained", "error", err)
		}
	})
	return dispatcher, cleanup.Close, nil
}

// OpenReceipts selects S3 when a bucket is configured.
func OpenReceipts(ctx context.Context, cfg *config.Config) (ports.ReceiptStore, error) {
	if cfg.S3ReceiptBucket == "" {
		return receipt.NewMemoryStore(), nil
	}
	return receipt.NewS3StoreFromEnv(ctx, cfg.S3ReceiptBucket, cfg.AWSRegion)
}

// Drafts is the wizard's draft store plus what the server needs around it.
type Drafts struct {
	Store ports.DraftStore
	// Sweeper is set for the memory store; redis expires keys itself.
	Sweeper *wizardStore.InMemoryDraftStore
	Health  func(ctx context.Context) error
}

// OpenDrafts selects redis when REDIS_URL is set.
func OpenDrafts(ctx context.Context, cfg *config.Config) (*Drafts, func(), error) {
	client, err := platformredis.New(ctx, cfg.Redis())
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		mem := wizardStore.NewInMemoryDraftStore()
		return &Drafts{Store: mem, Sweeper: mem}, func() {}, nil
	}
	return &Drafts{
		Store:  wizardStore.NewRedis(client.Client),
		Health: client.Health,
	}, func() { _ = client.Close() }, nil
}
