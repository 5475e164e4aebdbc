// Package main is the entry point for the numbering audit worker.
// It runs a dry-run audit on a fixed interval and logs what it finds;
// repairs stay an explicit operator action.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"docnum/internal/app"
	"docnum/internal/config"
	appctx "docnum/internal/core/context"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = appctx.WithOperator(ctx, &appctx.Operator{Name: "audit-worker", Source: "worker"})

	log.Infow("starting numbering audit worker",
		"prefix", cfg.Numbering.Prefix,
		"table", cfg.Numbering.Table,
		"interval", cfg.Audit.Interval,
	)

	backend, err := app.PostgresBackend(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer backend.Close()

	auditor, err := backend.NewAuditor(cfg, log)
	if err != nil {
		log.Fatalw("failed to build auditor", "error", err)
	}

	worker := NewAuditWorker(auditor, cfg.Audit.Interval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
