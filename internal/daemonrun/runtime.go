package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"camrelay/internal/config"
	"camrelay/internal/delivery/telegram"
	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/metrics"
	"camrelay/internal/notifications"
	"camrelay/internal/source"
	"camrelay/internal/source/ftpsource"
	"camrelay/internal/source/localdir"
	"camrelay/internal/workflow"
)

// Runtime bundles the collaborators one relay process drives.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	RunID    string
	Ledger   *ledger.Store
	Metrics  *metrics.Recorder
	Bot      *telegram.Client
	Notifier notifications.Service
	Manager  *workflow.Manager

	watcher *localdir.Watcher
}

// NewRunID returns the identifier stamped on every log line and job of one
// invocation.
func NewRunID() string {
	return time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// SourceLayout builds the directory layout shared by both source kinds.
func SourceLayout(cfg *config.Config) source.Layout {
	return source.Layout{RecordSubdir: cfg.FTP.RecordSubdir, Extensions: cfg.FTP.Extensions}
}

// SourceOpener returns the opener selected by source.kind. The local
// directory is returned as well so callers can attach a watcher.
func SourceOpener(cfg *config.Config, logger *slog.Logger) (source.Opener, *localdir.Dir) {
	if cfg.Source.Kind == config.SourceLocal {
		dir := localdir.New(cfg.Source.LocalDir, SourceLayout(cfg))
		return dir.Opener(), dir
	}
	return ftpsource.Opener(ftpsource.OptionsFromConfig(cfg, logger)), nil
}

// Build opens the ledger and wires the workflow manager. With watch set and
// a local source, new files wake the loop early. Close releases everything.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runID string, watch bool) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		RunID:    runID,
		Ledger:   store,
		Metrics:  metrics.New(),
		Bot:      telegram.New(telegram.OptionsFromConfig(cfg)),
		Notifier: notifications.NewService(cfg),
	}

	open, dir := SourceOpener(cfg, logger)
	deps := workflow.Deps{
		Open:      open,
		Ledger:    store,
		Pipeline:  workflow.BuildPipeline(cfg, logger),
		Deliverer: rt.Bot,
		Notifier:  rt.Notifier,
		Metrics:   rt.Metrics,
		Logger:    logger,
	}
	if watch && dir != nil {
		w, err := localdir.NewWatcher(ctx, dir, 0, logger)
		if err != nil {
			logging.WarnWithContext(logger, "inbox watcher unavailable; polling only", "watcher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits and local_dir permissions"),
				logging.String(logging.FieldImpact, "new files are picked up on the next poll"),
			)
		} else {
			rt.watcher = w
			deps.Watcher = w
		}
	}
	rt.Manager = workflow.NewManager(cfg, runID, deps)
	return rt, nil
}

// Close stops the watcher and closes the ledger.
func (r *Runtime) Close() error {
	var errs []error
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	if r.Ledger != nil {
		errs = append(errs, r.Ledger.Close())
	}
	return errors.Join(errs...)
}
