// Command fundlyctl is the operator CLI: receipt review, project lifecycle
// and reports, run directly against the configured database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"fundly/internal/app"
	"fundly/internal/platform/config"
	"fundly/internal/platform/logger"
)

var Version = "dev"

func main() {
	root := newRootCmd(openCore)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openCore connects to postgres. Memory stores would vanish with the
// process, so the CLI refuses to run without a database.
func openCore(ctx context.Context, envFile string) (*app.Core, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	stores, closeStores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	notifier, closeNotifier, err := app.OpenNotifier(ctx, cfg, log, nil)
	if err != nil {
		closeStores()
		return nil, nil, err
	}
	return app.NewCore(stores, log, nil, notifier), func() {
		closeNotifier()
		closeStores()
	}, nil
}
