package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Render writes a human-readable report. The output is deterministic for a
// given report, dry-run output lists the intended changes.
func (r *Report) Render(w io.Writer) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "audit run %s (%s, prefix %s)\n", r.RunID, r.Mode, r.Prefix)
	fmt.Fprintf(b, "records:          %d\n", r.Total)
	fmt.Fprintf(b, "valid:            %d\n", r.ValidCount)
	fmt.Fprintf(b, "invalid:          %d\n", r.InvalidCount)
	if r.OtherPrefixCount > 0 {
		fmt.Fprintf(b, "other prefix:     %d\n", r.OtherPrefixCount)
	}
	fmt.Fprintf(b, "duplicate groups: %d\n", len(r.DuplicateGroups))
	for _, g := range r.DuplicateGroups {
		fmt.Fprintf(b, "  %s kept #%d, members %s\n", g.Number, g.Kept(), joinIDs(g.Members))
	}

	if len(r.Periods) > 0 {
		b.WriteString("periods by created_at:\n")
		for _, p := range r.Periods {
			fmt.Fprintf(b, "  %s  records %d, sequences %s, gaps %s",
				p.Period, p.Records, joinInts(p.UsedSequences), joinInts(p.Gaps))
			if p.Mismatched > 0 {
				fmt.Fprintf(b, ", %d in another period", p.Mismatched)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Changes) > 0 {
		b.WriteString("changes:\n")
		for _, c := range r.Changes {
			target := c.NewNumber
			if target == "" {
				target = "?"
			}
			fmt.Fprintf(b, "  #%d %q -> %s %s %s", c.ID, c.OldNumber, target, c.Reason, c.State)
			if c.Error != "" {
				fmt.Fprintf(b, " (%s)", c.Error)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(b, "repaired:         %d\n", r.RepairedCount)
	fmt.Fprintf(b, "failed:           %d\n", r.FailedCount)

	_, err := io.WriteString(w, b.String())
	return err
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "#" + strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, " ")
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "[]"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
