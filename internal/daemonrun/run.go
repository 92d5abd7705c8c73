package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/daemon"
	"camrelay/internal/logging"
	"camrelay/internal/preflight"
	"camrelay/internal/services"
	"camrelay/internal/staging"
	"camrelay/internal/workflow"
)

// staleCycleAge is how old a leftover cycle directory must be before startup
// removes it.
const staleCycleAge = time.Hour

// Options configures process runtime behavior.
type Options struct {
	LogLevel string
	// SkipPreflight disables the Telegram reachability check.
	SkipPreflight bool
}

// Run starts the relay daemon and blocks until SIGINT/SIGTERM or a fatal
// error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := NewRunID()
	logger, logPath, err := newRunLogger(cfg, opts, runID)
	if err != nil {
		return err
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	if err := prepare(signalCtx, cfg, logger); err != nil {
		return err
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "camrelay-*.log", Exclude: []string{logPath}},
	)

	rt, err := Build(signalCtx, cfg, logger, runID, true)
	if err != nil {
		logger.Error("runtime setup failed", logging.Error(err))
		return err
	}
	defer rt.Close()

	if !opts.SkipPreflight {
		checkTelegram(signalCtx, cfg, rt, logger)
	}

	d, err := daemon.New(cfg, logger, rt.Manager, rt.Metrics, rt.Ledger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	err = d.Run(signalCtx)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart"),
		)
	}
	return err
}

// Once runs a single cycle in the foreground and returns its summary.
func Once(ctx context.Context, cfg *config.Config, logger *slog.Logger) (workflow.CycleSummary, error) {
	if cfg == nil {
		return workflow.CycleSummary{}, fmt.Errorf("config is required")
	}
	if err := prepare(ctx, cfg, logger); err != nil {
		return workflow.CycleSummary{}, err
	}
	rt, err := Build(ctx, cfg, logger, NewRunID(), false)
	if err != nil {
		return workflow.CycleSummary{}, err
	}
	defer rt.Close()

	summary := rt.Manager.RunCycle(ctx)
	if summary.Fatal != nil {
		return summary, summary.Fatal
	}
	return summary, nil
}

// prepare validates config, requires ffmpeg/ffprobe, and clears stale cycle
// directories. It runs before anything touches the source.
func prepare(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	for _, warning := range cfg.Warnings {
		logging.WarnWithContext(logger, warning, "config_warning",
			logging.String(logging.FieldImpact, "a default value is used instead"),
		)
	}
	if err := cfg.ValidateRelay(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := preflight.RequireTools(ctx, cfg, nil); err != nil {
		logging.ErrorWithContext(logger, "required tools missing", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffmpeg with libx264 and aac, or set transcode.ffmpeg_binary"),
		)
		return err
	}
	if failed := preflight.Failed(preflight.RunAll(ctx, cfg, nil)); len(failed) > 0 {
		return services.Wrap(services.ErrConfiguration, "preflight", failed[0].Name, failed[0].Detail, nil)
	}
	staging.CleanStale(ctx, cfg.Paths.WorkDir, staleCycleAge, logger)
	return nil
}

// checkTelegram logs whether the Bot API accepts the token. A failure does
// not stop startup; undelivered segments are retried every cycle.
func checkTelegram(ctx context.Context, cfg *config.Config, rt *Runtime, logger *slog.Logger) {
	result := preflight.CheckTelegram(ctx, rt.Bot)
	if result.Passed {
		logger.Info("telegram reachable", logging.String("detail", result.Detail))
		return
	}
	logging.WarnWithContext(logger, "telegram check failed", "preflight_telegram_failed",
		logging.String("detail", result.Detail),
		logging.String(logging.FieldErrorHint, "verify telegram.bot_token and network access to "+cfg.Telegram.APIBaseURL),
		logging.String(logging.FieldImpact, "uploads will fail until the Bot API is reachable"),
	)
}

func newRunLogger(cfg *config.Config, opts Options, runID string) (*slog.Logger, string, error) {
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("camrelay-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:   level,
		Format:  cfg.Logging.Format,
		Outputs: []string{"stdout", logPath},
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update camrelay.log link: %v\n", err)
	}
	return logger, logPath, nil
}

// ensureCurrentLogPointer points camrelay.log at the active run's log file.
func ensureCurrentLogPointer(current, target string) error {
	if err := os.Remove(current); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
