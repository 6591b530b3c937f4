// Package cli holds the civicsync-admin commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"civicsync-admin/config"
	"civicsync-admin/logging"
	"civicsync-admin/store"
)

// RootOptions holds global flags and the hooks commands use to reach their environment.
type RootOptions struct {
	Format string // "json" | "text"

	loadConfig func() (config.Config, error)
	openStore  func(ctx context.Context, cfg config.Config, logger logging.Logger) (store.Store, func(), error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.Load, openStore: config.OpenStore})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "civicsync-admin",
		Short:         "CivicSync municipal admin service",
		Long:          "Serves the CivicSync admin API and runs maintenance tasks against the complaint store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewMigrateStatusesCommand(opts))
	cmd.AddCommand(NewCreateWorkerCommand(opts))
	cmd.AddCommand(NewCreateHeadCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// env loads configuration, builds the logger and opens the store. The returned function
// releases the store.
func (o *RootOptions) env(cmd *cobra.Command) (config.Config, logging.Logger, store.Store, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.IsProduction())

	s, closeFn, err := o.openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	return cfg, logger, s, closeFn, nil
}
