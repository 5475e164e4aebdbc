// Package app wires configuration, storage and domain services together for
// the numbering CLI and the audit worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"docnum/internal/config"
	"docnum/internal/core/entity"
	corenumbering "docnum/internal/core/numbering"
	"docnum/internal/domain/audit"
	"docnum/internal/domain/numbering"
	"docnum/internal/domain/submission"
	"docnum/internal/infrastructure/storage/memory"
	"docnum/internal/infrastructure/storage/postgres"
	"docnum/internal/infrastructure/storage/postgres/submission_repo"
	"docnum/pkg/logger"
)

// Journal records repairs and reads them back per run.
type Journal interface {
	audit.Journal
	RunEntries(ctx context.Context, runID string) ([]entity.RepairEntry, error)
}

// Backend bundles the storage the commands operate on.
type Backend struct {
	Numbering   numbering.Repository
	Locker      numbering.Locker
	Submissions submission.Repository
	Records     audit.Repository
	Journal     Journal

	// Migrate creates the schema. Nil when the backend has none.
	Migrate func(ctx context.Context) error

	// Close releases connections. Never nil.
	Close func()
}

// BackendFactory opens a Backend for cfg.
type BackendFactory func(ctx context.Context, cfg *config.Config) (*Backend, error)

// ErrNoDatabase is returned by PostgresBackend without a database URL.
var ErrNoDatabase = errors.New("database url is not configured (set " + config.EnvDatabaseURL + ")")

// PostgresBackend connects to PostgreSQL.
func PostgresBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	if cfg.Database.URL == "" {
		return nil, ErrNoDatabase
	}

	connectCtx := ctx
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
	}

	pool, err := postgres.NewPool(connectCtx, cfg.PoolConfig())
	if err != nil {
		return nil, err
	}

	txm := postgres.NewTxManager(pool)

	repo, err := submission_repo.New(txm, cfg.Numbering.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}

	journal, err := postgres.NewRepairJournal(txm)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Numbering:   repo,
		Locker:      postgres.NewAdvisoryLocker(txm),
		Submissions: repo,
		Records:     repo,
		Journal:     journal,
		Migrate: func(ctx context.Context) error {
			return postgres.Migrate(ctx, txm, repo.Table())
		},
		Close: pool.Close,
	}, nil
}

// MemoryBackend serves every call from store and journal. Used by tests and
// local experiments; there is nothing to migrate.
func MemoryBackend(store *memory.Store, journal *memory.Journal) BackendFactory {
	if journal == nil {
		journal = memory.NewJournal()
	}
	locker := memory.NewLocker()
	return func(context.Context, *config.Config) (*Backend, error) {
		return &Backend{
			Numbering:   store,
			Locker:      locker,
			Submissions: store,
			Records:     store,
			Journal:     journal,
			Close:       func() {},
		}, nil
	}
}

// NewAllocator builds the allocator configured by cfg.
func (b *Backend) NewAllocator(cfg *config.Config) *numbering.Allocator {
	return numbering.NewAllocator(b.Numbering, b.Locker, cfg.NumberingOptions())
}

// NewSubmissionService builds the submission service configured by cfg.
func (b *Backend) NewSubmissionService(cfg *config.Config) *submission.Service {
	return submission.NewService(b.NewAllocator(cfg), b.Submissions)
}

// NewAuditor builds an auditor for the configured prefix and timezone.
func (b *Backend) NewAuditor(cfg *config.Config, log *logger.Logger) (*audit.Auditor, error) {
	codec, err := corenumbering.NewCodec(cfg.Numbering.Prefix)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("audit timezone: %w", err)
	}

	var journal audit.Journal
	if b.Journal != nil {
		journal = b.Journal
	}

	return audit.NewAuditor(audit.Config{
		Repo:     b.Records,
		Journal:  journal,
		Codec:    codec,
		Location: loc,
		Logger:   log,
	}), nil
}

// NewLogger builds the process logger from cfg. Output goes to stderr.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		OutputPaths: []string{"stderr"},
	})
}
