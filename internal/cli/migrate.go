package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the submission table, its unique index and the repair journal",
		Args:  cobra.NoArgs,
		RunE: rootOpts.runE(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			if rootOpts.backend.Migrate == nil {
				return NewExitError(ExitCommandError, "this backend has no schema to migrate")
			}
			if err := rootOpts.backend.Migrate(ctx); err != nil {
				return err
			}

			res := map[string]string{"table": rootOpts.cfg.Numbering.Table, "status": "up to date"}
			return rootOpts.formatter(cmd).Emit(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "schema for %s is up to date\n", res["table"])
				return err
			})
		}),
	}
}
