package workflow

import (
	"context"
	"errors"
	"time"

	"camrelay/internal/logging"
	"camrelay/internal/notifications"
	"camrelay/internal/services"
	"camrelay/internal/source"
	"camrelay/internal/staging"
)

// CycleResult classifies how a cycle ended; it picks the next sleep interval.
type CycleResult string

const (
	CycleOK            CycleResult = "ok"
	CycleEmpty         CycleResult = "empty"
	CycleConnectFailed CycleResult = "connect_failed"
	CycleListFailed    CycleResult = "list_failed"
)

// CycleSummary reports one pass over the source.
type CycleSummary struct {
	Result    CycleResult
	Listed    int
	Pending   int
	Delivered int
	Failed    int
	Started   time.Time
	Finished  time.Time
	// Fatal is set when the cycle failed in a way retrying will not fix.
	Fatal error
}

// RunCycle opens the source, processes every undelivered segment in order,
// and removes the cycle's scratch directory before returning.
func (m *Manager) RunCycle(ctx context.Context) CycleSummary {
	summary := CycleSummary{Started: m.deps.Now()}
	defer func() {
		summary.Finished = m.deps.Now()
		m.finishCycle(summary)
	}()

	src, err := m.deps.Open(ctx)
	if err != nil {
		summary.Result = CycleConnectFailed
		m.setLastError(err)
		if !services.Retryable(err) {
			summary.Fatal = err
		}
		logging.WarnWithContext(m.logger, "source unavailable; retrying later", "source_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ftp host, credentials, and network reachability"),
			logging.String(logging.FieldImpact, "no segments fetched this cycle"),
			logging.Duration("retry_in", m.errorRetryInterval()),
		)
		return summary
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Debug("source close failed", logging.Error(err))
		}
	}()

	segments, err := src.List(ctx)
	switch {
	case errors.Is(err, source.ErrNoDays):
		summary.Result = CycleEmpty
		m.logger.Info("no day directories on source",
			logging.String(logging.FieldEventType, "source_empty"),
			logging.Duration("retry_in", m.emptyRetryInterval()),
		)
		return summary
	case err != nil:
		summary.Result = CycleListFailed
		m.setLastError(err)
		logging.WarnWithContext(m.logger, "listing failed; retrying later", "source_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no segments fetched this cycle"),
		)
		return summary
	}
	summary.Result = CycleOK
	summary.Listed = len(segments)

	pending := make([]source.Segment, 0, len(segments))
	for _, seg := range segments {
		seen, err := m.deps.Ledger.Has(ctx, seg.Key)
		if err != nil {
			logging.ErrorWithContext(m.logger, "ledger lookup failed; segment skipped", "ledger_lookup_failed",
				logging.String(logging.FieldSegment, seg.Key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check state_dir permissions and disk space"),
			)
			continue
		}
		if !seen {
			pending = append(pending, seg)
		}
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		m.logger.Debug("no new segments", logging.Int("listed", len(segments)))
		return summary
	}

	cycle, err := staging.NewCycleDir(m.cfg.Paths.WorkDir)
	if err != nil {
		summary.Fatal = services.Wrap(services.ErrConfiguration, "workflow", "stage", "create cycle directory", err)
		m.setLastError(summary.Fatal)
		return summary
	}
	defer cycle.Remove(m.logger)

	m.logger.Info("processing new segments",
		logging.String(logging.FieldEventType, "cycle_started"),
		logging.Int("pending", len(pending)),
		logging.Int("listed", len(segments)),
	)
	for _, seg := range pending {
		if ctx.Err() != nil {
			return summary
		}
		if m.processSegment(ctx, src, cycle, seg) {
			summary.Delivered++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func (m *Manager) finishCycle(summary CycleSummary) {
	m.mu.Lock()
	m.lastCycle = summary
	m.cycles++
	m.mu.Unlock()

	m.deps.Metrics.ObserveCycle(string(summary.Result), summary.Pending-summary.Delivered, summary.Finished)
	if summary.Pending > 0 {
		m.logger.Info("cycle complete",
			logging.String(logging.FieldEventType, "cycle_complete"),
			logging.Int("delivered", summary.Delivered),
			logging.Int("failed", summary.Failed),
			logging.Duration("elapsed", summary.Finished.Sub(summary.Started)),
		)
	}
	if summary.Fatal != nil {
		_ = m.deps.Notifier.Publish(context.Background(), notifications.EventError, notifications.Payload{
			"context": "workflow",
			"error":   summary.Fatal,
		})
	}
}
