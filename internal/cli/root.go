// Package cli implements the numbering operator command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docnum/internal/app"
	"docnum/internal/config"
	appctx "docnum/internal/core/context"
	"docnum/pkg/logger"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Deps are the replaceable collaborators of the commands.
type Deps struct {
	Backend app.BackendFactory

	// LoadConfig defaults to config.Load.
	LoadConfig func(path string) (*config.Config, error)

	// Logger overrides the logger built from configuration.
	Logger *logger.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// RootOptions holds global flags and the state shared by subcommands.
type RootOptions struct {
	ConfigFile string
	Format     string

	deps    Deps
	cfg     *config.Config
	log     *logger.Logger
	backend *app.Backend
}

// NewRootCommand creates the root command.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.LoadConfig == nil {
		deps.LoadConfig = config.Load
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Backend == nil {
		deps.Backend = app.PostgresBackend
	}
	opts := &RootOptions{deps: deps}

	cmd := &cobra.Command{
		Use:   "numbering",
		Short: "Allocate and audit sequential document numbers",
		Long: `Allocate gap-filling PREFIX-YYYY-MM-NNNN document numbers and audit the
persisted corpus for malformed or duplicated numbers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.open(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default $"+config.EnvConfigFile+")")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewAllocateCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) open(cmd *cobra.Command) error {
	cfg, err := o.deps.LoadConfig(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	o.cfg = cfg

	o.log = o.deps.Logger
	if o.log == nil {
		if o.log, err = app.NewLogger(cfg); err != nil {
			return WrapExitError(ExitCommandError, "init logger", err)
		}
	}

	ctx := o.commandContext(cmd)
	backend, err := o.deps.Backend(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "open storage", err)
	}
	o.backend = backend
	return nil
}

// runE adapts fn to cobra, with the decorated context and the backend
// closed afterwards.
func (o *RootOptions) runE(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer o.close()
		return fn(o.commandContext(cmd), cmd, args)
	}
}

func (o *RootOptions) close() {
	if o.backend != nil {
		o.backend.Close()
		o.backend = nil
	}
	if o.log != nil {
		_ = o.log.Sync()
	}
}

// commandContext decorates the command context with the operator, a trace
// and the logger.
func (o *RootOptions) commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if appctx.GetOperator(ctx) == nil {
		ctx = appctx.WithOperator(ctx, &appctx.Operator{Name: osUser(), Source: "cli"})
	}
	ctx = appctx.EnsureTrace(ctx)
	if o.log != nil {
		ctx = logger.WithLogger(ctx, o.log)
	}
	return ctx
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func osUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
