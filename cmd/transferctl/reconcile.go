package main

import (
	"fmt"

	"wallettx/internal/app"
	"wallettx/internal/config"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep over stale transfers",
		Long: `Redrives transfers that have been INITIATED for longer than
RECONCILE_STALE_AFTER and times out those past their deadline and
redrive budget. The sweep is skipped when a running transaction service
holds the sweep lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load(config.TransactionService)

			infra, err := app.Connect(ctx, cfg, newLogger(cmd))
			if err != nil {
				return err
			}
			defer infra.Close()

			proc, err := app.NewTransactionProcess(cfg, infra.Deps, nil)
			if err != nil {
				return err
			}

			report, err := proc.Sweeper.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			if report.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "sweep skipped: another process holds the lock")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scanned:  %d\n", report.Scanned)
			fmt.Fprintf(out, "redriven: %d\n", report.Redriven)
			fmt.Fprintf(out, "expired:  %d\n", report.Expired)
			fmt.Fprintf(out, "waiting:  %d\n", report.Waiting)

			// redriven requests sit in the outbox until relayed
			res := proc.Relay.DispatchOnce(ctx)
			fmt.Fprintf(out, "relayed:  %d/%d\n", res.Published, res.Processed)
			return nil
		},
	}
}
