package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"camrelay/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently processed segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No segments processed yet")
				return nil
			}
			fmt.Fprintln(out, renderHistory(jobs))

			counts, err := store.OutcomeCounts(cmd.Context())
			if err != nil {
				return err
			}
			printOutcomeCounts(out, counts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func renderHistory(jobs []ledger.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		multiplier := ""
		if job.Multiplier > 0 {
			multiplier = fmt.Sprintf("%.3f", job.Multiplier)
		}
		fps := job.FPS
		if fps != "" && job.PlanSource != "" {
			fps = fmt.Sprintf("%s (%s)", fps, job.PlanSource)
		}
		rows = append(rows, []string{
			job.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			job.Key,
			job.Outcome,
			fps,
			multiplier,
			yesNo(job.Delivered),
			job.Duration().Round(time.Second).String(),
			truncate(job.Error, 60),
		})
	}
	return renderTable(
		[]string{"Finished", "Segment", "Outcome", "FPS", "Multiplier", "Sent", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func printOutcomeCounts(out io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(out, "All time: %s\n", formatOutcomeCounts(counts))
}

func formatOutcomeCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, outcome := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", outcome, counts[outcome]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
