package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/metrics"
	"camrelay/internal/notifications"
	"camrelay/internal/source"
	"camrelay/internal/transcode"
)

// Ledger is the persistent delivered set plus job history.
type Ledger interface {
	Has(ctx context.Context, key string) (bool, error)
	MarkDelivered(ctx context.Context, key, outputName string, at time.Time) error
	RecordJob(ctx context.Context, job ledger.Job) error
}

// Transcoder runs the core pipeline on one downloaded file.
type Transcoder interface {
	Run(ctx context.Context, req transcode.Request) (transcode.Report, error)
}

// Deliverer uploads a finished file.
type Deliverer interface {
	Send(ctx context.Context, path, caption string) error
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Open      source.Opener
	Ledger    Ledger
	Pipeline  Transcoder
	Deliverer Deliverer
	Notifier  notifications.Service
	Metrics   *metrics.Recorder
	// Watcher, when set, wakes the loop early on new files.
	Watcher source.Watcher
	Logger  *slog.Logger
	Now     func() time.Time
}

// Manager repeats the fetch, transcode, deliver cycle on a timer.
type Manager struct {
	cfg   *config.Config
	deps  Deps
	runID string

	logger *slog.Logger

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   error
	lastCycle CycleSummary
	cycles    int
}

// NewManager constructs a workflow manager. runID tags every log line and job.
func NewManager(cfg *config.Config, runID string, deps Deps) *Manager {
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := logging.NewComponentLogger(deps.Logger, "workflow")
	if runID != "" {
		logger = logger.With(logging.String(logging.FieldRunID, runID))
	}
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		runID:  runID,
		logger: logger,
	}
}
