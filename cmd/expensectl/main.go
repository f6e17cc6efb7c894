package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"expensetracker/internal/cli"
	"expensetracker/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, os.Stderr)

	store := cli.OpenStore(logger, cfg.DBPath)
	svc := services.NewExpenseService(store, cfg.ChartWindowDays)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Run(ctx, svc, os.Args[1:], os.Stdout)
	stop()
	if cerr := svc.Close(); cerr != nil && err == nil {
		err = cerr
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	case errors.Is(err, cli.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case services.IsValidation(err):
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	default:
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
