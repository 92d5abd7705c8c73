package workflow

import (
	"context"
	"errors"
	"time"

	"camrelay/internal/logging"
)

// Start runs the loop in the background until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := m.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run repeats cycles until ctx ends. It returns early only when a cycle hits
// an error that retrying cannot fix, such as a missing FTP host.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Duration("poll_interval", m.pollInterval()),
	)
	defer m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))

	for {
		summary := m.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if summary.Fatal != nil {
			return summary.Fatal
		}
		if !m.wait(ctx, m.intervalFor(summary.Result)) {
			return ctx.Err()
		}
	}
}

func (m *Manager) intervalFor(result CycleResult) time.Duration {
	switch result {
	case CycleConnectFailed, CycleListFailed:
		return m.errorRetryInterval()
	case CycleEmpty:
		return m.emptyRetryInterval()
	default:
		return m.pollInterval()
	}
}

// wait sleeps for d, waking early when the source watcher reports new files.
// It returns false once ctx is done.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var changes <-chan struct{}
	if m.deps.Watcher != nil {
		changes = m.deps.Watcher.Changes()
	}
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-changes:
		m.logger.Debug("new files detected; starting cycle early")
	}
	return true
}
