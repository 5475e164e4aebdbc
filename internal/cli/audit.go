package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docnum/internal/domain/audit"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find malformed and duplicated numbers, optionally repair them",
		Long: `Classify every persisted number. Without --apply nothing is written and
the report lists the intended changes.

With --apply malformed numbers and later members of duplicate groups are
rewritten to PREFIX-YYYY-MM-{id:04}, derived from the record's creation time
and ID. The earliest record of a duplicate group keeps its number.`,
		Args: cobra.NoArgs,
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			mode := audit.ModeDryRun
			if apply {
				mode = audit.ModeApply
			}

			auditor, err := rootOpts.backend.NewAuditor(rootOpts.cfg, rootOpts.log)
			if err != nil {
				return err
			}

			report, err := auditor.Run(ctx, mode)
			if err != nil {
				return err
			}

			if err := rootOpts.formatter(cmd).Emit(report, report.Render); err != nil {
				return err
			}
			if report.FailedCount > 0 {
				return NewExitError(ExitFailure,
					fmt.Sprintf("%d change(s) could not be applied, see run %s", report.FailedCount, report.RunID))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "rewrite numbers (default is a dry run)")
	return cmd
}
