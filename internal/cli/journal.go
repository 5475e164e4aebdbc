package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docnum/internal/core/id"
)

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal <run-id>",
		Short: "List the repairs applied by an audit run",
		Args:  cobra.ExactArgs(1),
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if rootOpts.backend.Journal == nil {
				return NewExitError(ExitCommandError, "this backend keeps no repair journal")
			}

			if !id.Valid(args[0]) {
				return NewExitError(ExitCommandError, fmt.Sprintf("run id %q is not a UUID", args[0]))
			}

			entries, err := rootOpts.backend.Journal.RunEntries(ctx, args[0])
			if err != nil {
				return err
			}

			return rootOpts.formatter(cmd).Emit(entries, func(w io.Writer) error {
				b := &strings.Builder{}
				if len(entries) == 0 {
					fmt.Fprintf(b, "no repairs recorded for run %s\n", args[0])
				}
				for _, e := range entries {
					fmt.Fprintf(b, "%s #%d %q -> %s %s", e.CreatedAt.Format(time.RFC3339), e.SubmissionID, e.OldNumber, e.NewNumber, e.Reason)
					if e.Operator != "" {
						fmt.Fprintf(b, " by %s", e.Operator)
					}
					b.WriteString("\n")
				}
				_, err := io.WriteString(w, b.String())
				return err
			})
		}),
	}
	return cmd
}
