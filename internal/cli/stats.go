package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	corenumbering "docnum/internal/core/numbering"
	"docnum/internal/domain/numbering"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix, period string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show used sequences, gaps and the next number of a period",
		Args:  cobra.NoArgs,
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			at, err := rootOpts.periodTime(period)
			if err != nil {
				return err
			}
			p := corenumbering.PeriodOf(at)

			st, err := numbering.NewStatsService(rootOpts.backend.Numbering).
				ComputeStats(ctx, rootOpts.prefixOr(prefix), p.Year, p.Month)
			if err != nil {
				return err
			}

			return rootOpts.formatter(cmd).Emit(st, func(w io.Writer) error {
				return writeStats(w, st)
			})
		}),
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "document prefix (default from config)")
	cmd.Flags().StringVar(&period, "period", "", "period as YYYY-MM (default current month)")
	return cmd
}

func writeStats(w io.Writer, st numbering.Stats) error {
	b := &strings.Builder{}
	fmt.Fprintf(b, "prefix:      %s\n", st.Prefix)
	fmt.Fprintf(b, "period:      %s\n", st.Period())
	fmt.Fprintf(b, "total:       %d\n", st.Total)
	fmt.Fprintf(b, "used:        %v\n", st.UsedSequences)
	fmt.Fprintf(b, "gaps:        %v\n", st.Gaps)
	if st.NextSequence <= corenumbering.MaxSequence {
		fmt.Fprintf(b, "next:        %d (%s)\n", st.NextSequence,
			corenumbering.Format(st.Prefix, st.Year, st.Month, st.NextSequence))
	} else {
		fmt.Fprintf(b, "next:        none, period exhausted\n")
	}
	if st.FirstNumber != "" {
		fmt.Fprintf(b, "first:       %s\n", st.FirstNumber)
		fmt.Fprintf(b, "last:        %s\n", st.LastNumber)
	}
	fmt.Fprintf(b, "utilization: %s\n", st.Utilization.StringFixed(4))
	_, err := io.WriteString(w, b.String())
	return err
}
