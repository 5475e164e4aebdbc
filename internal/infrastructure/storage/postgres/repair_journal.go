package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"docnum/internal/core/entity"
	"docnum/internal/core/id"
)

// RepairTable is the journal table name.
const RepairTable = "numbering_repairs"

// CompressionAlgo specifies how the details payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// repairRow is the stored form of entity.RepairEntry.
type repairRow struct {
	ID                string          `db:"id"`
	RunID             string          `db:"run_id"`
	SubmissionID      int64           `db:"submission_id"`
	OldNumber         string          `db:"old_number"`
	NewNumber         string          `db:"new_number"`
	Reason            string          `db:"reason"`
	Operator          string          `db:"operator"`
	Details           json.RawMessage `db:"details"`
	DetailsCompressed []byte          `db:"details_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

var repairColumns = ExtractDBColumns[repairRow]()

// RepairJournal stores applied repairs in the numbering_repairs table.
// It implements audit.Journal.
type RepairJournal struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewRepairJournal creates a new journal.
func NewRepairJournal(txm *TxManager) (*RepairJournal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &RepairJournal{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Record inserts one entry.
func (j *RepairJournal) Record(ctx context.Context, entry entity.RepairEntry) error {
	row, err := j.encode(entry)
	if err != nil {
		return err
	}

	sql, args, err := builder().
		Insert(RepairTable).
		SetMap(StructToMap(row)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := j.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", RepairTable, err)
	}
	return nil
}

// RunEntries returns the entries written by one audit run, oldest first.
func (j *RepairJournal) RunEntries(ctx context.Context, runID string) ([]entity.RepairEntry, error) {
	sql, args, err := builder().
		Select(repairColumns...).
		From(RepairTable).
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []repairRow
	if err := pgxscan.Select(ctx, j.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", RepairTable, err)
	}

	out := make([]entity.RepairEntry, 0, len(rows))
	for _, r := range rows {
		e, err := j.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *RepairJournal) encode(e entity.RepairEntry) (repairRow, error) {
	if e.ID == "" {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	row := repairRow{
		ID:              e.ID,
		RunID:           e.RunID,
		SubmissionID:    e.SubmissionID,
		OldNumber:       e.OldNumber,
		NewNumber:       e.NewNumber,
		Reason:          string(e.Reason),
		Operator:        e.Operator,
		CompressionAlgo: CompressionNone,
		CreatedAt:       e.CreatedAt,
	}

	if len(e.Details) == 0 {
		return row, nil
	}
	payload, err := json.Marshal(e.Details)
	if err != nil {
		return row, fmt.Errorf("marshal details: %w", err)
	}
	if len(payload) > j.compressThreshold {
		row.DetailsCompressed = j.encoder.EncodeAll(payload, nil)
		row.CompressionAlgo = CompressionZstd
		return row, nil
	}
	row.Details = payload
	return row, nil
}

func (j *RepairJournal) decode(r repairRow) (entity.RepairEntry, error) {
	e := entity.RepairEntry{
		ID:           r.ID,
		RunID:        r.RunID,
		SubmissionID: r.SubmissionID,
		OldNumber:    r.OldNumber,
		NewNumber:    r.NewNumber,
		Reason:       entity.RepairReason(r.Reason),
		Operator:     r.Operator,
		CreatedAt:    r.CreatedAt,
	}

	payload := []byte(r.Details)
	if r.CompressionAlgo == CompressionZstd && len(r.DetailsCompressed) > 0 {
		decompressed, err := j.decoder.DecodeAll(r.DetailsCompressed, nil)
		if err != nil {
			return e, fmt.Errorf("decompress details: %w", err)
		}
		payload = decompressed
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Details); err != nil {
			return e, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return e, nil
}
