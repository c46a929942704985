package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ArticlesReconciler/internal/app"
	"ArticlesReconciler/internal/config"
	"ArticlesReconciler/internal/logging"
)

func main() {
	cronMode := flag.Bool("cron", false, "stay resident and scan on the configured schedule")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *cronMode {
		err = application.RunScheduled(ctx)
	} else {
		err = application.Run(ctx)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
