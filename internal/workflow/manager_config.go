package workflow

import (
	"log/slog"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/logging"
	"camrelay/internal/media/ffprobe"
	"camrelay/internal/transcode"
)

// BuildPipeline wires ffprobe and ffmpeg from the transcode config section.
// The frame rate policy is copied into the pipeline, never read globally.
func BuildPipeline(cfg *config.Config, logger *slog.Logger) *transcode.Pipeline {
	timeout := time.Duration(cfg.Transcode.ToolTimeout) * time.Second
	settings := transcode.Settings{
		CRF:           cfg.Transcode.CRF,
		Preset:        cfg.Transcode.Preset,
		AudioBitrate:  cfg.Transcode.AudioBitrate,
		RawExtensions: cfg.Transcode.RawExtensions,
	}
	return &transcode.Pipeline{
		Prober:  ffprobe.NewProber(cfg.Transcode.FFprobeBinary, timeout),
		Encoder: transcode.NewEncoder(cfg.Transcode.FFmpegBinary, settings, timeout),
		Policy: transcode.Policy{
			TargetFPS:   cfg.Transcode.TargetFPS,
			FallbackFPS: cfg.Transcode.FallbackFPS,
			Tolerance:   cfg.Transcode.Tolerance,
		},
		Settings: settings,
		Logger:   logging.NewComponentLogger(logger, "transcode"),
	}
}

func (m *Manager) pollInterval() time.Duration {
	return seconds(m.cfg.Workflow.PollInterval, 60)
}

func (m *Manager) errorRetryInterval() time.Duration {
	return seconds(m.cfg.Workflow.ErrorRetryInterval, 10)
}

func (m *Manager) emptyRetryInterval() time.Duration {
	return seconds(m.cfg.Workflow.EmptyRetryInterval, 10)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
