package main

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"camrelay/internal/config"
	"camrelay/internal/daemonrun"
	"camrelay/internal/delivery/telegram"
	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relay configuration, reachability, and delivery totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := statusLines(cmd.Context(), cfg, ctx.configPath, offline, colorize)
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the FTP and Telegram reachability checks")
	return cmd
}

func statusLines(ctx context.Context, cfg *config.Config, configPath string, offline, colorize bool) []string {
	var lines []string
	section := func(title string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderSectionHeader(title, colorize)...)
	}

	section("Relay")
	lines = append(lines, renderStatusLine("Config", statusInfo, configPath, colorize))
	lines = append(lines, daemonLine(cfg, colorize))
	lines = append(lines, renderStatusLine("Target FPS", statusInfo, targetFPSText(cfg), colorize))

	section("Delivery")
	lines = append(lines, ledgerLines(ctx, cfg, colorize)...)

	section("Connectivity")
	if offline {
		lines = append(lines, renderStatusLine("Source", statusInfo, "skipped (--offline)", colorize))
		lines = append(lines, renderStatusLine("Telegram", statusInfo, "skipped (--offline)", colorize))
	} else {
		open, _ := daemonrun.SourceOpener(cfg, logging.NewNop())
		probe := preflight.ProbeSource(ctx, open)
		kind := statusOK
		if !probe.Reachable {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(sourceLabel(cfg), kind, probe.SourceDetail(), colorize))
		lines = append(lines, resultLine(preflight.CheckTelegram(ctx, telegram.New(telegram.OptionsFromConfig(cfg))), colorize))
	}
	for _, result := range preflight.RunAll(ctx, cfg, nil) {
		lines = append(lines, resultLine(result, colorize))
	}

	section("Dependencies")
	lines = append(lines, dependencyLines(preflight.CheckSystemDeps(ctx, cfg, nil), colorize)...)
	return lines
}

func daemonLine(cfg *config.Config, colorize bool) string {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	switch {
	case err != nil:
		return renderStatusLine("Daemon", statusWarn, fmt.Sprintf("unknown (%v)", err), colorize)
	case ok:
		_ = lock.Unlock()
		return renderStatusLine("Daemon", statusWarn, "not running", colorize)
	default:
		return renderStatusLine("Daemon", statusOK, "running (lock held)", colorize)
	}
}

func ledgerLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	store, err := ledger.Open(cfg)
	if err != nil {
		return []string{renderStatusLine("Ledger", statusError, err.Error(), colorize)}
	}
	defer store.Close()

	delivered, err := store.DeliveredCount(ctx)
	if err != nil {
		return []string{renderStatusLine("Ledger", statusError, err.Error(), colorize)}
	}
	lines := []string{renderStatusLine("Delivered", statusInfo, fmt.Sprintf("%d segments", delivered), colorize)}

	counts, err := store.OutcomeCounts(ctx)
	if err == nil && len(counts) > 0 {
		lines = append(lines, renderStatusLine("Outcomes", statusInfo, formatOutcomeCounts(counts), colorize))
	}
	if jobs, err := store.Recent(ctx, 1); err == nil && len(jobs) > 0 {
		last := jobs[0]
		kind := statusOK
		if !last.Delivered {
			kind = statusWarn
		}
		detail := fmt.Sprintf("%s %s at %s", last.Key, last.Outcome, last.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		lines = append(lines, renderStatusLine("Last job", kind, detail, colorize))
	}
	return lines
}

func resultLine(result preflight.Result, colorize bool) string {
	kind := statusOK
	if !result.Passed {
		kind = statusError
		if result.Detail == "not configured" {
			kind = statusWarn
		}
	}
	return renderStatusLine(result.Name, kind, result.Detail, colorize)
}

func sourceLabel(cfg *config.Config) string {
	if cfg.Source.Kind == config.SourceLocal {
		return "Local inbox"
	}
	return "FTP " + cfg.FTP.Host
}

func targetFPSText(cfg *config.Config) string {
	if cfg.Transcode.TargetFPS > 0 {
		return fmt.Sprintf("%d (configured)", cfg.Transcode.TargetFPS)
	}
	return fmt.Sprintf("auto-detect, fallback %d", cfg.Transcode.FallbackFPS)
}
