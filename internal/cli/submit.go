package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"docnum/internal/domain/submission"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix, at string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a submission record with a freshly allocated number",
		Args:  cobra.NoArgs,
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			loc, err := rootOpts.location()
			if err != nil {
				return err
			}

			createdAt := rootOpts.deps.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --at", err)
				}
				createdAt = t
			}
			// the period is taken in the zone the auditor uses
			createdAt = createdAt.In(loc)

			rec, err := rootOpts.backend.NewSubmissionService(rootOpts.cfg).Submit(ctx, submission.NewSubmission{
				Prefix:    rootOpts.prefixOr(prefix),
				CreatedAt: createdAt,
			})
			if err != nil {
				return err
			}

			return rootOpts.formatter(cmd).Emit(rec, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "#%d %s %s\n", rec.ID, rec.Number, rec.CreatedAt.Format(time.RFC3339))
				return err
			})
		}),
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "document prefix (default from config)")
	cmd.Flags().StringVar(&at, "at", "", "creation time, RFC 3339 (default now)")
	return cmd
}
