package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	appctx "docnum/internal/core/context"
	"docnum/internal/core/entity"
	"docnum/internal/core/id"
	"docnum/internal/core/numbering"
	domainnumbering "docnum/internal/domain/numbering"
	"docnum/pkg/logger"
)

// Auditor classifies and repairs persisted document numbers.
//
// Repairs never go through the allocator: the new number is derived from the
// record's own ID and creation time, which cannot race with live allocations.
type Auditor struct {
	repo    Repository
	journal Journal
	codec   numbering.Codec
	loc     *time.Location
	newID   func() string
	log     *logger.Logger
}

// Config configures an Auditor.
type Config struct {
	Repo    Repository
	Journal Journal // optional
	Codec   numbering.Codec
	// Location is used to derive the period of created_at. Default time.Local.
	Location *time.Location
	Logger   *logger.Logger
}

// NewAuditor creates a new auditor.
func NewAuditor(cfg Config) *Auditor {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Auditor{
		repo:    cfg.Repo,
		journal: cfg.Journal,
		codec:   cfg.Codec,
		loc:     loc,
		newID:   id.New,
		log:     log.WithComponent("auditor"),
	}
}

// WithRunIDs replaces the run ID generator.
func (a *Auditor) WithRunIDs(gen func() string) *Auditor {
	a.newID = gen
	return a
}

// Run audits the whole corpus. In ModeApply it rewrites invalid and
// duplicate numbers one row at a time; a failed row is logged and counted
// without stopping the batch. ModeDryRun never writes.
func (a *Auditor) Run(ctx context.Context, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	records, err := a.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	report := a.plan(records)
	report.RunID = a.newID()
	report.Mode = mode

	log := a.log.WithContext(ctx).With("run_id", report.RunID, "mode", mode)

	for i := range report.Changes {
		ch := &report.Changes[i]
		if ch.State == StateFailed {
			log.Errorw("cannot repair number", "id", ch.ID, "number", ch.OldNumber, "error", ch.Error)
			continue
		}
		if mode == ModeDryRun {
			ch.State = StateFlaggedOnly
			continue
		}
		a.apply(ctx, log, report.RunID, ch)
	}

	for _, ch := range report.Changes {
		switch ch.State {
		case StateRepaired:
			report.RepairedCount++
		case StateFailed:
			report.FailedCount++
		}
	}

	log.Infow("audit finished",
		"total", report.Total,
		"valid", report.ValidCount,
		"invalid", report.InvalidCount,
		"other_prefix", report.OtherPrefixCount,
		"duplicate_groups", len(report.DuplicateGroups),
		"repaired", report.RepairedCount,
		"failed", report.FailedCount,
	)

	return report, nil
}

func (a *Auditor) apply(ctx context.Context, log *logger.Logger, runID string, ch *Change) {
	if err := a.repo.UpdateNumber(ctx, ch.ID, ch.OldNumber, ch.NewNumber); err != nil {
		ch.State = StateFailed
		ch.Error = err.Error()
		log.Errorw("repair failed", "id", ch.ID, "old", ch.OldNumber, "new", ch.NewNumber, "error", err)
		return
	}
	ch.State = StateRepaired

	if a.journal == nil {
		return
	}
	entry := entity.RepairEntry{
		ID:           id.New(),
		RunID:        runID,
		SubmissionID: ch.ID,
		OldNumber:    ch.OldNumber,
		NewNumber:    ch.NewNumber,
		Reason:       ch.Reason,
		Operator:     appctx.GetOperatorName(ctx),
		Details: map[string]any{
			"record_created_at": ch.CreatedAt.Format(time.RFC3339),
			"source":            operatorSource(ctx),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := a.journal.Record(ctx, entry); err != nil {
		// the row is already repaired; losing the journal line is not a failure
		log.Warnw("repair journal write failed", "id", ch.ID, "error", err)
	}
}

// plan classifies records and computes the intended changes without writing.
func (a *Auditor) plan(records []entity.Submission) *Report {
	report := &Report{
		Prefix:          a.codec.Prefix(),
		Total:           len(records),
		DuplicateGroups: []DuplicateGroup{},
		Periods:         []PeriodUsage{},
		Changes:         []Change{},
	}

	var (
		invalid  []entity.Submission
		byNumber = make(map[string][]entity.Submission)
		// taken maps a number to the record currently holding it
		taken = make(map[string]int64)
	)

	for _, r := range records {
		if !a.codec.Validate(r.Number) {
			// a well-formed number of another prefix was issued by the
			// allocator for that prefix and is not ours to rewrite
			if numbering.Validate(r.Number) {
				report.OtherPrefixCount++
				continue
			}
			invalid = append(invalid, r)
			continue
		}
		byNumber[r.Number] = append(byNumber[r.Number], r)
		if _, ok := taken[r.Number]; !ok {
			taken[r.Number] = r.ID
		}
	}
	report.InvalidCount = len(invalid)
	report.ValidCount = len(records) - len(invalid) - report.OtherPrefixCount

	sort.Slice(invalid, func(i, j int) bool { return invalid[i].ID < invalid[j].ID })
	for _, r := range invalid {
		report.Changes = append(report.Changes, a.planChange(r, entity.RepairInvalidFormat, taken))
	}

	numbers := make([]string, 0, len(byNumber))
	for n, members := range byNumber {
		if len(members) > 1 {
			numbers = append(numbers, n)
		}
	}
	sort.Strings(numbers)

	for _, n := range numbers {
		members := byNumber[n]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return members[i].ID < members[j].ID
		})

		group := DuplicateGroup{Number: n}
		for _, m := range members {
			group.Members = append(group.Members, m.ID)
		}
		report.DuplicateGroups = append(report.DuplicateGroups, group)

		taken[n] = members[0].ID
		for _, m := range members[1:] {
			report.Changes = append(report.Changes, a.planChange(m, entity.RepairDuplicate, taken))
		}
	}

	report.Periods = a.periodUsage(byNumber)
	return report
}

// planChange derives the canonical number of r and reserves it in taken.
// A target that cannot be encoded or is held by another record makes the
// change fail up front.
func (a *Auditor) planChange(r entity.Submission, reason entity.RepairReason, taken map[string]int64) Change {
	ch := Change{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		OldNumber: r.Number,
		Reason:    reason,
		State:     StateInvalid,
	}
	if reason == entity.RepairDuplicate {
		ch.State = StateDuplicateMember
	}

	target, err := a.codec.Canonical(r.ID, r.CreatedAt.In(a.loc))
	if err != nil {
		ch.State = StateFailed
		ch.Error = err.Error()
		return ch
	}
	ch.NewNumber = target

	if holder, ok := taken[target]; ok && holder != r.ID {
		ch.State = StateFailed
		ch.Error = fmt.Sprintf("target number %s is held by record %d", target, holder)
		return ch
	}
	taken[target] = r.ID
	return ch
}

func (a *Auditor) periodUsage(byNumber map[string][]entity.Submission) []PeriodUsage {
	type acc struct {
		records    int
		mismatched int
		seqs       map[int]struct{}
	}
	groups := make(map[numbering.Period]*acc)

	for number, members := range byNumber {
		n, _ := a.codec.Parse(number)
		for _, m := range members {
			p := numbering.PeriodOf(m.CreatedAt.In(a.loc))
			g, ok := groups[p]
			if !ok {
				g = &acc{seqs: make(map[int]struct{})}
				groups[p] = g
			}
			g.records++
			g.seqs[n.Sequence] = struct{}{}
			if n.Period() != p {
				g.mismatched++
			}
		}
	}

	periods := make([]numbering.Period, 0, len(groups))
	for p := range groups {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})

	out := make([]PeriodUsage, 0, len(periods))
	for _, p := range periods {
		g := groups[p]
		used := make([]int, 0, len(g.seqs))
		for s := range g.seqs {
			used = append(used, s)
		}
		sort.Ints(used)
		out = append(out, PeriodUsage{
			Period:        p.String(),
			Records:       g.records,
			UsedSequences: used,
			Gaps:          domainnumbering.Gaps(used),
			Mismatched:    g.mismatched,
		})
	}
	return out
}

func operatorSource(ctx context.Context) string {
	if op := appctx.GetOperator(ctx); op != nil && op.Source != "" {
		return op.Source
	}
	return "unknown"
}
