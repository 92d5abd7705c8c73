package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/notifications"
	"camrelay/internal/services"
	"camrelay/internal/source"
	"camrelay/internal/staging"
	"camrelay/internal/textutil"
	"camrelay/internal/transcode"
)

// processSegment fetches, transcodes, and delivers one segment. It returns
// true once the segment is in the delivered set. Any earlier failure leaves
// the segment undelivered so the next cycle retries it.
func (m *Manager) processSegment(ctx context.Context, src source.Source, cycle staging.CycleDir, seg source.Segment) bool {
	jobID := uuid.NewString()
	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldSegment, seg.Key))

	job := ledger.Job{ID: jobID, RunID: m.runID, Key: seg.Key, StartedAt: m.deps.Now()}
	defer func() {
		job.FinishedAt = m.deps.Now()
		if err := m.deps.Ledger.RecordJob(context.WithoutCancel(ctx), job); err != nil {
			logger.Warn("job history not recorded", logging.Error(err))
		}
	}()

	// fetch
	localPath := cycle.File(seg.Name)
	start := time.Now()
	fetchCtx := services.WithStage(ctx, "fetch")
	if err := src.Fetch(fetchCtx, seg, localPath); err != nil {
		m.deps.Metrics.ObserveStage("fetch", time.Since(start))
		job.Outcome = "fetch_failed"
		job.Error = err.Error()
		m.setLastError(err)
		logging.WarnWithContext(logger, "download failed; segment retried next cycle", "segment_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment not delivered this cycle"),
		)
		return false
	}
	m.deps.Metrics.ObserveStage("fetch", time.Since(start))

	// transcode
	outputName := textutil.OutputName(seg.Day, seg.Name)
	start = time.Now()
	report, err := m.deps.Pipeline.Run(services.WithStage(ctx, "transcode"), transcode.Request{
		SourcePath: localPath,
		OutputPath: cycle.File(outputName),
	})
	m.deps.Metrics.ObserveStage("transcode", time.Since(start))
	job.Outcome = report.Outcome.String()
	job.PlanSource = report.Plan.Source.String()
	job.FPS = report.Plan.Formatted()
	job.Multiplier = report.Validation.Multiplier
	m.deps.Metrics.ObserveJob(job.Outcome, job.PlanSource, report.Validation.Multiplier,
		report.Validation.Verdict != transcode.VerdictSkipped)
	if err != nil {
		job.Error = err.Error()
		m.setLastError(err)
		logging.ErrorWithContext(logger, "encode failed; segment skipped", "segment_encode_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'camrelay probe' on the segment and check ffmpeg output"),
		)
		m.publish(ctx, notifications.EventEncodeFailed, notifications.Payload{"segment": seg.Key, "error": err})
		return false
	}
	m.announceTiming(ctx, seg, report)

	// deliver
	caption := textutil.ExpandCaption(m.cfg.Telegram.Caption, textutil.CaptionFields{
		Name:    seg.Name,
		Day:     seg.Day,
		Segment: seg.Key,
	})
	start = time.Now()
	err = m.deps.Deliverer.Send(services.WithStage(ctx, "deliver"), report.OutputPath, caption)
	m.deps.Metrics.ObserveStage("deliver", time.Since(start))
	m.deps.Metrics.ObserveDelivery(err == nil)
	if err != nil {
		job.Error = err.Error()
		m.setLastError(err)
		logging.WarnWithContext(logger, "telegram upload failed; segment retried next cycle", "segment_delivery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check bot token, chat id, and that the bot can post to the chat"),
			logging.String(logging.FieldImpact, "segment not delivered this cycle"),
		)
		m.publish(ctx, notifications.EventDeliveryFailed, notifications.Payload{"segment": seg.Key, "error": err})
		return false
	}

	if err := m.deps.Ledger.MarkDelivered(context.WithoutCancel(ctx), seg.Key, outputName, m.deps.Now()); err != nil {
		logging.ErrorWithContext(logger, "delivered segment not recorded; it may be sent again", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and disk space"),
		)
	}
	job.Delivered = true
	logger.Info("segment delivered",
		logging.String(logging.FieldEventType, "segment_delivered"),
		logging.String("output", outputName),
		logging.String("outcome", job.Outcome),
		logging.String("fps", job.FPS),
	)

	if m.cfg.FTP.DeleteAfterSuccess {
		start = time.Now()
		if err := src.Remove(ctx, seg); err != nil {
			logging.WarnWithContext(logger, "remote delete failed; segment stays on source", "segment_remove_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the ftp user may delete files"),
				logging.String(logging.FieldImpact, "camera storage is not reclaimed; the segment will not be resent"),
			)
		}
		m.deps.Metrics.ObserveStage("remove", time.Since(start))
	}
	return true
}

func (m *Manager) announceTiming(ctx context.Context, seg source.Segment, report transcode.Report) {
	switch report.Outcome {
	case transcode.OutcomeCorrected:
		m.publish(ctx, notifications.EventTimingCorrected, notifications.Payload{
			"segment":    seg.Key,
			"expected":   report.Validation.ExpectedSeconds,
			"actual":     report.Validation.ActualSeconds,
			"multiplier": report.Validation.Multiplier,
		})
	case transcode.OutcomeCorrectionFailed:
		m.publish(ctx, notifications.EventCorrectionFailed, notifications.Payload{
			"segment": seg.Key,
			"error":   report.CorrectionErr,
		})
	}
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
