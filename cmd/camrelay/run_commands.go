package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"camrelay/internal/daemonrun"
	"camrelay/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay loop in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      ctx.logLevel(),
				SkipPreflight: skipPreflight,
			})
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the Telegram reachability check at startup")
	return cmd
}

func newOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single fetch, transcode, and deliver cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			summary, err := daemonrun.Once(cmd.Context(), cfg, ctx.cliLogger(cfg))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Result:    %s\n", summary.Result)
			fmt.Fprintf(out, "Listed:    %d\n", summary.Listed)
			fmt.Fprintf(out, "Pending:   %d\n", summary.Pending)
			fmt.Fprintf(out, "Delivered: %d\n", summary.Delivered)
			fmt.Fprintf(out, "Failed:    %d\n", summary.Failed)
			if err != nil {
				return err
			}
			switch summary.Result {
			case workflow.CycleConnectFailed, workflow.CycleListFailed:
				return fmt.Errorf("cycle %s; see the log for details", summary.Result)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d segment(s) failed; they will be retried on the next cycle", summary.Failed)
			}
			return nil
		},
	}
}
