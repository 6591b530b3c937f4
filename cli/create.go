package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"civicsync-admin/accounts"
	"civicsync-admin/directory"
)

// NewCreateWorkerCommand creates the create-worker command.
func NewCreateWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	var form directory.WorkerForm

	cmd := &cobra.Command{
		Use:   "create-worker",
		Short: "Register a field worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, s, closeFn, err := rootOpts.env(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			worker, err := directory.NewWorkerDirectory(s, logger).RegisterWorker(cmd.Context(), form)
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, worker, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created worker %s (%s)\n", worker.ID, worker.Name)
			})
		},
	}

	cmd.Flags().StringVar(&form.Name, "name", "", "worker name")
	cmd.Flags().StringVar(&form.Phone, "phone", "", "10-digit phone number")
	cmd.Flags().StringVar(&form.Department, "department", "", "department (garbage, streetlight, roaddamage, water, drainage)")
	cmd.Flags().StringVar(&form.Pincode, "pincode", "", "area pincode")
	cmd.Flags().StringVar(&form.Location, "location", "", "location shown in the worker list")

	return cmd
}

// NewCreateHeadCommand creates the create-head command.
func NewCreateHeadCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password, department string

	cmd := &cobra.Command{
		Use:   "create-head",
		Short: "Create a department head account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, s, closeFn, err := rootOpts.env(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			head, err := accounts.NewService(s, accounts.AdminCredentials{}, logger).
				CreateHead(cmd.Context(), email, password, department)
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, head, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created department head %s for %s\n", head.HeadID, head.Department)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&department, "department", "", "department (garbage, streetlight, roaddamage, water, drainage)")

	return cmd
}
