package postgres

import (
	"context"
	"fmt"
	"strings"

	"docnum/internal/core/entity"
	"docnum/pkg/logger"
)

// SchemaStatements returns the DDL for the submission table named table and
// the repair journal. Every statement is idempotent.
//
// The unique index comes last and on its own: on a database holding legacy
// duplicates it fails until the auditor has repaired them, while the tables
// are still created.
func SchemaStatements(table string) ([]string, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGSERIAL PRIMARY KEY,
	%s TEXT NOT NULL,
	%s TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table, entity.ColumnID, entity.ColumnNumber, entity.ColumnCreatedAt),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	run_id TEXT NOT NULL,
	submission_id BIGINT NOT NULL,
	old_number TEXT NOT NULL,
	new_number TEXT NOT NULL,
	reason TEXT NOT NULL,
	operator TEXT NOT NULL DEFAULT '',
	details JSONB,
	details_compressed BYTEA,
	compression_algo TEXT NOT NULL DEFAULT 'none',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, RepairTable),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_run_id_idx ON %s (run_id)`, RepairTable, RepairTable),

		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)`,
			uniqueIndexName(table), table, entity.ColumnNumber),
	}, nil
}

func uniqueIndexName(table string) string {
	name := table[strings.LastIndex(table, ".")+1:]
	return name + "_" + entity.ColumnNumber + "_key"
}

// Migrate applies SchemaStatements one by one, each in its own transaction.
func Migrate(ctx context.Context, txm *TxManager, table string) error {
	stmts, err := SchemaStatements(table)
	if err != nil {
		return err
	}

	for i, stmt := range stmts {
		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := txm.GetQuerier(ctx).Exec(ctx, stmt)
			return err
		})
		if err != nil {
			if i == len(stmts)-1 && IsUniqueViolation(err) {
				return fmt.Errorf("create unique index on %s.%s: legacy duplicates present, run the audit with --apply first: %w",
					table, entity.ColumnNumber, err)
			}
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}

	logger.Info(ctx, "schema is up to date", "table", table, "journal", RepairTable)
	return nil
}
