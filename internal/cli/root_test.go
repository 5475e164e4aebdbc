package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnum/internal/app"
	"docnum/internal/config"
	"docnum/internal/core/apperror"
	"docnum/internal/core/entity"
	"docnum/internal/domain/audit"
	"docnum/internal/infrastructure/storage/memory"
	"docnum/pkg/logger"
)

var midJuly = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

func testDeps(store *memory.Store, journal *memory.Journal) Deps {
	return Deps{
		Backend: app.MemoryBackend(store, journal),
		LoadConfig: func(string) (*config.Config, error) {
			cfg := config.Default()
			cfg.Audit.Timezone = "UTC"
			cfg.Numbering.Backoff = time.Millisecond
			return cfg, nil
		},
		Logger: logger.NewNop(),
		Now:    func() time.Time { return midJuly },
	}
}

func execute(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seededStore(numbers ...string) *memory.Store {
	store := memory.NewStore()
	for _, n := range numbers {
		store.Seed(entity.Submission{Number: n, CreatedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)})
	}
	return store
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(Deps{})
	for _, name := range []string{"allocate", "submit", "stats", "audit", "journal", "migrate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, testDeps(memory.NewStore(), nil), "stats", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAllocate_FillsGap(t *testing.T) {
	store := seededStore("KTA-2025-07-0001", "KTA-2025-07-0003")

	out, err := execute(t, testDeps(store, nil), "allocate")
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0002\n", out)

	// nothing was written
	exists, err := store.NumberExists(context.Background(), "KTA-2025-07-0002")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAllocate_PeriodJSON(t *testing.T) {
	out, err := execute(t, testDeps(seededStore("KTA-2025-07-0001"), nil),
		"allocate", "--period", "2025-08", "--prefix", "INV", "--format", "json")
	require.NoError(t, err)

	var res AllocateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, AllocateResult{Number: "INV-2025-08-0001", Period: "2025-08"}, res)
}

func TestAllocate_RejectsBadInput(t *testing.T) {
	deps := testDeps(memory.NewStore(), nil)

	_, err := execute(t, deps, "allocate", "--prefix", "kta")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, deps, "allocate", "--period", "2025-13")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStats_Text(t *testing.T) {
	out, err := execute(t, testDeps(seededStore("KTA-2025-07-0001", "KTA-2025-07-0003"), nil),
		"stats", "--period", "2025-07")
	require.NoError(t, err)

	want := `prefix:      KTA
period:      2025-07
total:       2
used:        [1 3]
gaps:        [2]
next:        2 (KTA-2025-07-0002)
first:       KTA-2025-07-0001
last:        KTA-2025-07-0003
utilization: 0.0002
`
	assert.Equal(t, want, out)
}

func TestSubmit_InsertsRecord(t *testing.T) {
	store := seededStore("KTA-2025-07-0001", "KTA-2025-07-0003")

	out, err := execute(t, testDeps(store, nil), "submit")
	require.NoError(t, err)
	assert.Equal(t, "#3 KTA-2025-07-0002 2025-07-15T10:00:00Z\n", out)

	rec, err := store.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0002", rec.Number)
}

func TestSubmit_At(t *testing.T) {
	store := memory.NewStore()

	out, err := execute(t, testDeps(store, nil), "submit", "--at", "2024-12-31T23:00:00Z", "--format", "json")
	require.NoError(t, err)

	var rec entity.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "KTA-2024-12-0001", rec.Number)

	_, err = execute(t, testDeps(store, nil), "submit", "--at", "yesterday")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSubmit_AtIsNormalizedToAuditZone(t *testing.T) {
	store := memory.NewStore()

	// 23:30 at UTC-5 is already August 1 in UTC, the configured zone
	out, err := execute(t, testDeps(store, nil), "submit", "--at", "2025-07-31T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, "#1 KTA-2025-08-0001 2025-08-01T04:30:00Z\n", out)

	// the auditor files the record under the same period, nothing to repair
	out, err = execute(t, testDeps(store, nil), "audit", "--format", "json")
	require.NoError(t, err)
	var report audit.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.ValidCount)
	assert.Empty(t, report.Changes)
	require.Len(t, report.Periods, 1)
	assert.Equal(t, "2025-08", report.Periods[0].Period)
	assert.Zero(t, report.Periods[0].Mismatched)
}

func TestAudit_LeavesOtherPrefixesAlone(t *testing.T) {
	store := memory.NewStore()
	deps := testDeps(store, nil)

	out, err := execute(t, deps, "submit", "--prefix", "INV")
	require.NoError(t, err)
	assert.Equal(t, "#1 INV-2025-07-0001 2025-07-15T10:00:00Z\n", out)

	out, err = execute(t, deps, "audit", "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "other prefix:     1\n")
	assert.NotContains(t, out, "changes:")

	rec, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-07-0001", rec.Number)
}

func TestAudit_DryRunThenApply(t *testing.T) {
	store := memory.NewStore()
	store.Seed(
		entity.Submission{ID: 1, Number: "KTA-2025-07-0001", CreatedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		entity.Submission{ID: 2, Number: "KTA-2025-07-0001", CreatedAt: time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)},
	)
	journal := memory.NewJournal()
	deps := testDeps(store, journal)

	out, err := execute(t, deps, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, `#2 "KTA-2025-07-0001" -> KTA-2025-07-0002 duplicate flagged_only`)

	out, err = execute(t, deps, "audit", "--apply", "--format", "json")
	require.NoError(t, err)

	var report audit.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, audit.ModeApply, report.Mode)
	assert.Equal(t, 1, report.RepairedCount)

	rec, err := store.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0002", rec.Number)

	out, err = execute(t, deps, "journal", report.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, `#2 "KTA-2025-07-0001" -> KTA-2025-07-0002 duplicate`)

	const unknownRun = "0198a1c4-7f00-7000-8000-000000000000"
	out, err = execute(t, deps, "journal", unknownRun)
	require.NoError(t, err)
	assert.Equal(t, "no repairs recorded for run "+unknownRun+"\n", out)

	_, err = execute(t, deps, "journal", "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAudit_FailedChangesExitNonZero(t *testing.T) {
	store := memory.NewStore()
	store.Seed(
		entity.Submission{ID: 1, Number: "KTA-2025-07-0002", CreatedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		entity.Submission{ID: 2, Number: "garbage", CreatedAt: time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)},
	)

	out, err := execute(t, testDeps(store, nil), "audit", "--apply")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed:           1")
}

func TestMigrate_MemoryBackend(t *testing.T) {
	_, err := execute(t, testDeps(memory.NewStore(), nil), "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBackendFailure(t *testing.T) {
	deps := testDeps(memory.NewStore(), nil)
	deps.Backend = func(context.Context, *config.Config) (*app.Backend, error) {
		return nil, app.ErrNoDatabase
	}

	_, err := execute(t, deps, "stats")
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrNoDatabase)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"lock timeout", apperror.NewLockTimeout("numbering:KTA:2025-07", "10s"), ExitLockTimeout},
		{"validation", apperror.NewInvalidNumber("x"), ExitCommandError},
		{"not found", fmt.Errorf("get: %w", apperror.NewNotFound("submissions", 9)), ExitCommandError},
		{"allocation failed", apperror.NewAllocationFailed("KTA", "2025-07", 3), ExitFailure},
		{"plain", errors.New("connection reset"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}
