package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"camrelay/internal/config"
	"camrelay/internal/logging"
	"camrelay/internal/metrics"
	"camrelay/internal/workflow"
)

// ErrAlreadyRunning is returned when another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another camrelay daemon instance is already running")

// Counter reports the size of the delivered set; *ledger.Store satisfies it.
type Counter interface {
	DeliveredCount(ctx context.Context) (int, error)
}

// Daemon runs the relay loop and its HTTP listener under a single-instance lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	workflow  *workflow.Manager
	metrics   *metrics.Recorder
	delivered Counter

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	mu       sync.RWMutex
	httpAddr string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	Delivered    int
	LedgerPath   string
	LockFilePath string
	HTTPAddr     string
}

// New constructs a daemon around an already wired workflow manager. rec and
// delivered may be nil.
func New(cfg *config.Config, logger *slog.Logger, wf *workflow.Manager, rec *metrics.Recorder, delivered Counter) (*Daemon, error) {
	if cfg == nil || wf == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		workflow:  wf,
		metrics:   rec,
		delivered: delivered,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Run acquires the lock and blocks until ctx ends or the workflow stops on a
// fatal error. The lock is released before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
				logging.Error(err),
				logging.String("lock", d.lockPath),
				logging.String(logging.FieldImpact, "the next start may report another instance running"),
			)
		}
	}()

	srv, err := newHTTPServer(d.cfg, d, d.logger)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if srv != nil {
		d.setHTTPAddr(srv.addr())
		defer d.setHTTPAddr("")
		group.Go(func() error { return srv.serve(groupCtx) })
	}
	group.Go(func() error {
		err := d.workflow.Run(groupCtx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	d.logger.Info("camrelay daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	err = group.Wait()
	d.logger.Info("camrelay daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(),
		LedgerPath:   d.cfg.LedgerPath(),
		LockFilePath: d.lockPath,
		HTTPAddr:     d.HTTPAddr(),
	}
	if d.delivered != nil {
		if n, err := d.delivered.DeliveredCount(ctx); err == nil {
			status.Delivered = n
		}
	}
	return status
}

// HTTPAddr returns the bound listener address while Run is active.
func (d *Daemon) HTTPAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.httpAddr
}

func (d *Daemon) setHTTPAddr(addr string) {
	d.mu.Lock()
	d.httpAddr = addr
	d.mu.Unlock()
}
