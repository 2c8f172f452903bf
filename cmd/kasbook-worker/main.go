// Command kasbook-worker recomputes the cash book on request and verifies
// the stored derived values on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"kasbook/internal/cache"
	"kasbook/internal/cli"
	"kasbook/internal/config"
	"kasbook/internal/log"
	"kasbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout).WithComponent(log.ComponentWorker)
	logger.Info("Starting kasbook-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}

func run(logger *log.Logger, cfg *config.Config) (err error) {
	ctx, stop := cli.GracefulShutdown()
	defer stop()
	ctx = log.NewContext(ctx, logger)

	app, err := cli.Open(ctx, logger.Logger, cfg)
	if err != nil {
		return fmt.Errorf("open cash book: %w", err)
	}
	defer func() {
		err = multierr.Append(err, app.Close())
	}()

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(app.Archives)
	caches.StartCleanup(cfg.ArchiveCacheTTL)
	defer caches.Stop()

	w := worker.NewRecalcWorker(app.Book, cfg.VerifyInterval, cfg.VerifyRepair)

	// A failed startup check is logged; the periodic pass retries it.
	if err := w.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup verification", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if client := app.Backend.AMQP; client != nil {
		g.Go(func() error {
			return client.ConsumeRecalculateRequests(gctx, w.HandleRecalculateRequest)
		})
	} else {
		logger.Info("Skipping AMQP consumption - no broker configured", "events_backend", cfg.EventsBackend)
	}

	g.Go(func() error {
		return w.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
