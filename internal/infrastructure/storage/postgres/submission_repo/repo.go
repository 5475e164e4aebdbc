// Package submission_repo provides the PostgreSQL repository of submission
// records. It backs the allocator, the submission service and the auditor.
package submission_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docnum/internal/core/apperror"
	"docnum/internal/core/entity"
	corenumbering "docnum/internal/core/numbering"
	"docnum/internal/domain/audit"
	"docnum/internal/domain/numbering"
	"docnum/internal/domain/submission"
	"docnum/internal/infrastructure/storage/postgres"
)

// Compile-time interface checks.
var (
	_ numbering.Repository  = (*Repo)(nil)
	_ audit.Repository      = (*Repo)(nil)
	_ submission.Repository = (*Repo)(nil)
)

// DefaultTable is the submission table name.
const DefaultTable = "submissions"

// Repo reads and writes submission records.
//
// Queries go through TxManager.GetQuerier, so calls made under
// AdvisoryLocker.WithLock run in the lock's transaction.
type Repo struct {
	txm   *postgres.TxManager
	table string
}

// New creates a repository over table.
func New(txm *postgres.TxManager, table string) (*Repo, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := postgres.ValidateTableName(table); err != nil {
		return nil, err
	}
	return &Repo{txm: txm, table: table}, nil
}

// Table returns the table name.
func (r *Repo) Table() string { return r.table }

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// periodNumbersQuery narrows by the literal period prefix first, which an
// index on the number column can serve, then by the strict shape.
func (r *Repo) periodNumbersQuery(prefix string, p corenumbering.Period) squirrel.SelectBuilder {
	lit := corenumbering.PeriodPrefix(prefix, p)
	return r.Builder().
		Select(entity.ColumnNumber).
		From(r.table).
		Where(squirrel.Like{entity.ColumnNumber: lit + "%"}).
		Where(squirrel.Expr(entity.ColumnNumber+" ~ ?", "^"+lit+"[0-9]{4}$")).
		OrderBy(entity.ColumnNumber)
}

// PeriodNumbers implements numbering.Repository.
func (r *Repo) PeriodNumbers(ctx context.Context, prefix string, p corenumbering.Period) ([]string, error) {
	sql, args, err := r.periodNumbersQuery(prefix, p).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	// read-only outside the allocator; inside it the lock transaction is reused
	var numbers []string
	err = r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &numbers, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query period numbers %s: %w", p, err)
	}

	// the regex admits sequence 0000
	out := numbers[:0]
	for _, n := range numbers {
		if corenumbering.Validate(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *Repo) numberExistsSQL(number string) (string, []any, error) {
	sql, args, err := r.Builder().
		Select("1").
		From(r.table).
		Where(squirrel.Eq{entity.ColumnNumber: number}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", nil, err
	}
	return "SELECT EXISTS (" + sql + ")", args, nil
}

// NumberExists implements numbering.Repository.
func (r *Repo) NumberExists(ctx context.Context, number string) (bool, error) {
	sql, args, err := r.numberExistsSQL(number)
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var found bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("check number %s: %w", number, err)
	}
	return found, nil
}

// Get retrieves a record by ID.
func (r *Repo) Get(ctx context.Context, id int64) (entity.Submission, error) {
	var rec entity.Submission

	sql, args, err := r.Builder().
		Select(entity.SubmissionColumns...).
		From(r.table).
		Where(squirrel.Eq{entity.ColumnID: id}).
		Limit(1).
		ToSql()
	if err != nil {
		return rec, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return rec, apperror.NewNotFound(r.table, id)
		}
		return rec, fmt.Errorf("get by id: %w", err)
	}
	return rec, nil
}

// ListAll returns every record ordered by ID.
func (r *Repo) ListAll(ctx context.Context) ([]entity.Submission, error) {
	sql, args, err := r.Builder().
		Select(entity.SubmissionColumns...).
		From(r.table).
		OrderBy(entity.ColumnID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.Submission
	err = r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return out, nil
}

func (r *Repo) insertQuery(rec *entity.Submission) squirrel.InsertBuilder {
	return r.Builder().
		Insert(r.table).
		Columns(entity.ColumnNumber, entity.ColumnCreatedAt).
		Values(rec.Number, rec.CreatedAt).
		Suffix("RETURNING " + entity.ColumnID)
}

// Insert stores rec and sets its ID. A number already present fails with
// DUPLICATE_NUMBER.
func (r *Repo) Insert(ctx context.Context, rec *entity.Submission) error {
	sql, args, err := r.insertQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&rec.ID); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicateNumber(rec.Number).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

func (r *Repo) updateNumberQuery(id int64, oldNumber, newNumber string) squirrel.UpdateBuilder {
	return r.Builder().
		Update(r.table).
		Set(entity.ColumnNumber, newNumber).
		Where(squirrel.Eq{entity.ColumnID: id}).
		Where(squirrel.Eq{entity.ColumnNumber: oldNumber})
}

// UpdateNumber rewrites the number of record id if it still equals
// oldNumber, otherwise fails with CONCURRENT_MODIFICATION.
func (r *Repo) UpdateNumber(ctx context.Context, id int64, oldNumber, newNumber string) error {
	sql, args, err := r.updateNumberQuery(id, oldNumber, newNumber).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicateNumber(newNumber).WithCause(err)
		}
		return fmt.Errorf("update %s: %w", r.table, err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.table, id)
	}
	return nil
}
