package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/cli"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, os.Stdout)

	store := cli.OpenStore(logger, cfg.DBPath)
	svc := services.NewExpenseService(store, cfg.ChartWindowDays)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close expense store", applog.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(cfg.Addr(), svc, store, apphttp.Options{
		ListLimit:          cfg.ListLimit,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting expense tracker server",
			"port", cfg.Port,
			applog.FieldDBPath, cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
			return err
		}
		return nil
	})

	start := time.Now()
	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		_ = svc.Close()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", "uptime", time.Since(start).Round(time.Second).String())
}
