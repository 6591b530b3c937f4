package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"civicsync-admin/directory"
)

// NewMigrateStatusesCommand creates the migrate-statuses command.
func NewMigrateStatusesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-statuses",
		Short: "Rewrite legacy issue statuses to the canonical vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, s, closeFn, err := rootOpts.env(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			migrated, err := directory.NewIssueDirectory(s, logger).MigrateLegacyStatuses(cmd.Context())
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, map[string]int{"migrated": migrated}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Migrated %d issue status(es)\n", migrated)
			})
		},
	}
}
