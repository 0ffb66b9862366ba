package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"refundsaga/internal/shared/jobs"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run this role's reconciliation sweeps once",
		Long: `Re-publish refund requests for bookings stuck in REFUND_PENDING and
re-drive refunds stuck in PENDING, for whichever sides APP_ROLE runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler, err := jobs.NewScheduler(a.Logger)
			if err != nil {
				return err
			}
			defer scheduler.Stop()

			sweepers := a.Sweepers()
			names := make([]string, 0, len(sweepers))
			for name := range sweepers {
				names = append(names, name)
			}
			sort.Strings(names)

			var failed error
			for _, name := range names {
				processed, err := scheduler.Run(cmd.Context(), name, sweepers[name])
				if err != nil {
					failed = err
					fmt.Fprintf(cmd.OutOrStdout(), "%-24s failed: %v\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", name, processed)
			}
			return failed
		},
	}
}
