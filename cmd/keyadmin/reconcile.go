package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lang_gateway/internal/metrics"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [key]",
	Short: "Report accrued usage of getcheddar keys to the billing provider",
	Long: `Report accrued usage to the billing provider.

Pass a key to reconcile a single account or --all to reconcile every
getcheddar key, as the gateway's scheduler does.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

var reconcileAll bool

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "reconcile every getcheddar key")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if reconcileAll == (len(args) == 1) {
		return errors.New("pass either a key or --all")
	}

	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	out := cmd.OutOrStdout()

	if reconcileAll {
		summary, err := deps.Reconciler.ReportAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Reported: %d, skipped: %d, failed: %d\n", summary.Reported, summary.Skipped, summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d keys failed to reconcile", summary.Failed)
		}
		return nil
	}

	res := deps.Reconciler.Reconcile(cmd.Context(), args[0])
	switch res.Outcome {
	case metrics.OutcomeReported:
		fmt.Fprintf(out, "Reported %.3f thousand characters; used to date: %.3f\n", res.Reported, res.UsedToDate)
	case metrics.OutcomeSkipped:
		fmt.Fprintf(out, "Skipped: %s\n", res.Reason)
	default:
		return res.Err
	}
	return nil
}
