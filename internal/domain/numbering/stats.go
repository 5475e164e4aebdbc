package numbering

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"docnum/internal/core/apperror"
	corenumbering "docnum/internal/core/numbering"
)

var capacity = decimal.NewFromInt(corenumbering.MaxSequence)

// Stats describes the sequence space of one (prefix, year, month) partition.
type Stats struct {
	Prefix string `json:"prefix"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`

	// Total counts persisted rows, duplicates included.
	Total int `json:"total"`

	// UsedSequences is the distinct set of sequences in ascending order.
	UsedSequences []int `json:"usedSequences"`

	// Gaps lists every integer in [1, max(UsedSequences)] that is not used.
	Gaps []int `json:"gaps"`

	// NextSequence is the smallest positive integer not in UsedSequences.
	NextSequence int `json:"nextSequence"`

	FirstNumber string `json:"firstNumber,omitempty"`
	LastNumber  string `json:"lastNumber,omitempty"`

	// Utilization is len(UsedSequences) over the period capacity.
	Utilization decimal.Decimal `json:"utilization"`
}

// Period returns the partition the stats describe.
func (s Stats) Period() corenumbering.Period {
	return corenumbering.Period{Year: s.Year, Month: s.Month}
}

// ComputeFromNumbers builds Stats from persisted numbers of one period.
// Numbers that are malformed or belong to another prefix or period are
// ignored, so callers may pass a loosely filtered list.
func ComputeFromNumbers(prefix string, p corenumbering.Period, numbers []string) Stats {
	st := Stats{
		Prefix:        prefix,
		Year:          p.Year,
		Month:         p.Month,
		UsedSequences: []int{},
		Gaps:          []int{},
		NextSequence:  1,
		Utilization:   decimal.Zero,
	}

	seen := make(map[int]struct{}, len(numbers))
	for _, raw := range numbers {
		n, ok := corenumbering.Parse(raw)
		if !ok || n.Prefix != prefix || n.Period() != p {
			continue
		}
		st.Total++
		if _, dup := seen[n.Sequence]; dup {
			continue
		}
		seen[n.Sequence] = struct{}{}
		st.UsedSequences = append(st.UsedSequences, n.Sequence)
	}

	if len(st.UsedSequences) == 0 {
		return st
	}
	sort.Ints(st.UsedSequences)

	first := st.UsedSequences[0]
	last := st.UsedSequences[len(st.UsedSequences)-1]
	st.FirstNumber = corenumbering.Format(prefix, p.Year, p.Month, first)
	st.LastNumber = corenumbering.Format(prefix, p.Year, p.Month, last)

	st.Gaps = Gaps(st.UsedSequences)

	if len(st.Gaps) > 0 {
		st.NextSequence = st.Gaps[0]
	} else {
		st.NextSequence = last + 1
	}

	st.Utilization = decimal.NewFromInt(int64(len(st.UsedSequences))).
		DivRound(capacity, 4)

	return st
}

// Gaps returns every integer in [1, max(sorted)] missing from sorted.
// sorted must be ascending and free of duplicates.
func Gaps(sorted []int) []int {
	gaps := []int{}
	if len(sorted) == 0 {
		return gaps
	}

	// Walk [1, last] once against the sorted set.
	i := 0
	for seq := 1; seq <= sorted[len(sorted)-1]; seq++ {
		if sorted[i] == seq {
			i++
			continue
		}
		gaps = append(gaps, seq)
	}
	return gaps
}

// StatsService answers statistics queries for dashboards and the allocator.
type StatsService struct {
	repo Repository
}

// NewStatsService creates a new statistics service.
func NewStatsService(repo Repository) *StatsService {
	return &StatsService{repo: repo}
}

// ComputeStats returns the statistics of (prefix, year, month).
//
// A period without numbers is not an error: it yields Total 0 and
// NextSequence 1. When the query fails, the zero-valued stats for the period
// are returned together with the error.
func (s *StatsService) ComputeStats(ctx context.Context, prefix string, year, month int) (Stats, error) {
	p := corenumbering.Period{Year: year, Month: month}
	empty := ComputeFromNumbers(prefix, p, nil)

	if !corenumbering.ValidPrefix(prefix) {
		return empty, apperror.NewValidation("invalid document number prefix").
			WithDetail("prefix", prefix)
	}
	if !p.Valid() {
		return empty, apperror.NewValidation("invalid period").
			WithDetail("year", year).
			WithDetail("month", month)
	}

	numbers, err := s.repo.PeriodNumbers(ctx, prefix, p)
	if err != nil {
		return empty, fmt.Errorf("period numbers %s %s: %w", prefix, p, err)
	}

	return ComputeFromNumbers(prefix, p, numbers), nil
}
