package main

import (
	"context"
	"time"

	appctx "docnum/internal/core/context"
	"docnum/internal/domain/audit"
	"docnum/pkg/logger"
)

// Runner runs one audit pass.
type Runner interface {
	Run(ctx context.Context, mode audit.Mode) (*audit.Report, error)
}

// AuditWorker runs dry-run audits periodically.
type AuditWorker struct {
	runner   Runner
	interval time.Duration
	log      *logger.Logger
}

func NewAuditWorker(runner Runner, interval time.Duration, log *logger.Logger) *AuditWorker {
	return &AuditWorker{
		runner:   runner,
		interval: interval,
		log:      log.WithComponent("audit-worker"),
	}
}

// Run audits once immediately, then on every tick until ctx is done.
func (w *AuditWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *AuditWorker) runOnce(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	log := w.log.WithContext(ctx)

	report, err := w.runner.Run(ctx, audit.ModeDryRun)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Errorw("audit run failed", "error", err)
		return
	}

	findings := report.InvalidCount + len(report.DuplicateGroups)
	if findings == 0 {
		log.Debugw("number corpus is clean", "run_id", report.RunID, "total", report.Total)
		return
	}
	log.Warnw("number corpus needs repair",
		"run_id", report.RunID,
		"invalid", report.InvalidCount,
		"duplicate_groups", len(report.DuplicateGroups),
		"unrepairable", report.FailedCount,
	)
}
