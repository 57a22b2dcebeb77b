package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fundly/internal/app"
	"fundly/internal/jobs"
	jwttoken "fundly/internal/jwt_token"
	"fundly/internal/platform/config"
	"fundly/internal/platform/httpserver"
	"fundly/internal/platform/logger"
	"fundly/internal/platform/metrics"
	"fundly/internal/platform/tracing"
	"fundly/internal/sandbox"
	httptransport "fundly/internal/transport/http"
	wizardService "fundly/internal/wizard/service"
)

const (
	tokenIssuer   = "fundly"
	tokenAudience = "fundly-web"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing := tracing.Init(cfg.TraceSampleRatio)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	stores, closeStores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer closeStores()

	notifier, closeNotifier, err := app.OpenNotifier(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer closeNotifier()

	drafts, closeDrafts, err := app.OpenDrafts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open draft store: %w", err)
	}
	defer closeDrafts()

	receipts, err := app.OpenReceipts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open receipt store: %w", err)
	}

	core := app.NewCore(stores, log, m, notifier)

	if cfg.IsProduction() {
		log.Warn("sandbox payment gateway and verifier are active in production")
	}
	wizard, err := wizardService.New(wizardService.Dependencies{
		Drafts:    drafts.Store,
		Ledger:    core.Ledger,
		Donors:    core.Directory,
		Donations: core.Records,
		Gateway:   sandbox.NewGateway(log),
		Verifier:  sandbox.NewVerifier(cfg.SandboxDevCode, log),
		Receipts:  receipts,
	}, wizardService.Config{
		ResendCooldown: cfg.CodeResendCooldown,
		DraftTTL:       cfg.DraftTTL,
		LoginURL:       cfg.LoginURL,
		MinimumAmount:  cfg.MinPledgeAmount,
	},
		wizardService.WithLogger(log),
		wizardService.WithMetrics(m),
		wizardService.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("wizard: %w", err)
	}

	health := map[string]httptransport.HealthCheck{}
	if stores.Health != nil {
		health["postgres"] = stores.Health
	}
	if drafts.Health != nil {
		health["redis"] = drafts.Health
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:          log,
		Metrics:         m,
		Gatherer:        reg,
		Authenticator:   jwttoken.NewAuthenticator(jwtService),
		AdminToken:      cfg.AdminToken,
		CallbackSecret:  cfg.GatewayCallbackSecret,
		MaxReceiptBytes: cfg.MaxReceiptBytes,
		AllowedOrigins:  cfg.AllowedOrigins(),
		SecureCookies:   cfg.IsProduction(),
		HealthChecks:    health,
	}, httptransport.Services{
		Projects:  core.Ledger,
		Donations: core.Records,
		Wizard:    wizard,
	})

	jobOpts := []jobs.Option{}
	if drafts.Sweeper != nil {
		jobOpts = append(jobOpts, jobs.WithDraftSweeper(drafts.Sweeper))
	}
	scheduler := jobs.NewScheduler(jobs.New(core.Ledger, log, jobOpts...), log, cfg.ExpirySweepSchedule)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting fundly", "addr", cfg.Addr, "env", cfg.Env, "backend", stores.Backend)
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		<-scheduler.Stop().Done()
		log.Info("scheduler stopped")
		return nil
	})
	return g.Wait()
}
