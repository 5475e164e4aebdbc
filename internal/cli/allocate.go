package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	corenumbering "docnum/internal/core/numbering"
)

// AllocateResult is the output of allocate.
type AllocateResult struct {
	Number string `json:"number"`
	Period string `json:"period"`
}

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix, period string

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Compute the next free number of a period",
		Long: `Compute the smallest unused sequence of the period and check that no
record carries the resulting number. Nothing is written: use submit to
create a record with a number.`,
		Args: cobra.NoArgs,
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			prefix = rootOpts.prefixOr(prefix)
			at, err := rootOpts.periodTime(period)
			if err != nil {
				return err
			}

			number, err := rootOpts.backend.NewAllocator(rootOpts.cfg).AllocateUnique(ctx, prefix, at)
			if err != nil {
				return err
			}

			res := AllocateResult{Number: number, Period: corenumbering.PeriodOf(at).String()}
			return rootOpts.formatter(cmd).Emit(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Number)
				return err
			})
		}),
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "document prefix (default from config)")
	cmd.Flags().StringVar(&period, "period", "", "period as YYYY-MM (default current month)")
	return cmd
}

func (o *RootOptions) prefixOr(prefix string) string {
	if prefix == "" {
		return o.cfg.Numbering.Prefix
	}
	return prefix
}

// periodTime returns a time inside period, or now when period is empty,
// in the configured audit timezone.
func (o *RootOptions) periodTime(period string) (time.Time, error) {
	loc, err := o.location()
	if err != nil {
		return time.Time{}, err
	}
	if period == "" {
		return o.deps.Now().In(loc), nil
	}
	p, err := corenumbering.ParsePeriod(period)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc), nil
}

// location is the zone periods are derived in. The auditor derives the
// period of created_at in the same zone.
func (o *RootOptions) location() (*time.Location, error) {
	loc, err := o.cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "audit timezone", err)
	}
	return loc, nil
}
