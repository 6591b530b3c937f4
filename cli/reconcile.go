package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"civicsync-admin/assignment"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var policyFlag string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Scan issues and workers for broken assignment pointers",
		Long: `Scans every issue and worker once and reports pairs whose pointers disagree.
With --policy worker-wins or issue-wins the pointers are repaired as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, s, closeFn, err := rootOpts.env(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			raw := cfg.ReconcilePolicy
			if cmd.Flags().Changed("policy") {
				raw = policyFlag
			}
			policy, err := assignment.ParsePolicy(raw)
			if err != nil {
				return err
			}

			report, err := assignment.NewReconciler(s, policy, logger).Run(cmd.Context())
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) {
				fmt.Fprintf(w, "Scanned %d issues and %d workers (policy %s)\n", report.Issues, report.Workers, report.Policy)
				if report.Consistent() {
					fmt.Fprintln(w, "✓ All assignments consistent")
					return
				}
				for _, f := range report.Findings {
					fmt.Fprintf(w, "  %-15s issue=%s worker=%s\n", f.Kind, f.IssueID, f.WorkerID)
				}
				for _, a := range report.Actions {
					status := "applied"
					if !a.Applied {
						status = "skipped"
						if a.Skipped != "" {
							status += ": " + a.Skipped
						}
					}
					fmt.Fprintf(w, "  set %s %s %q -> %q (%s)\n", a.Target, a.ID, a.From, a.To, status)
				}
			})
		},
	}

	cmd.Flags().StringVar(&policyFlag, "policy", "", "repair policy (report|worker-wins|issue-wins), defaults to RECONCILE_POLICY")

	return cmd
}
