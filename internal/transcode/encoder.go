package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"camrelay/internal/services"
)

// Executor abstracts command execution so encodes can be tested without ffmpeg.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Settings are the fixed ffmpeg quality parameters shared by both passes.
type Settings struct {
	CRF          int
	Preset       string
	AudioBitrate string
	// RawExtensions lists source extensions that are bare HEVC elementary
	// streams and need explicit input framing when no audio is present.
	RawExtensions []string
}

// DefaultSettings returns libx264 CRF 23 "fast" with 128k AAC audio.
func DefaultSettings() Settings {
	return Settings{
		CRF:           23,
		Preset:        "fast",
		AudioBitrate:  "128k",
		RawExtensions: []string{".265", ".h265", ".hevc"},
	}
}

// IsRawStream reports whether path names a bare elementary stream.
func (s Settings) IsRawStream(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, raw := range s.RawExtensions {
		if strings.EqualFold(raw, ext) {
			return true
		}
	}
	return false
}

// Job describes one first-pass encode.
type Job struct {
	SourcePath     string
	OutputPath     string
	Plan           Plan
	SourceHasAudio bool
}

// NeedsInputFraming reports whether ffmpeg must be told the input format and
// rate: only a bare elementary stream without audio lacks usable timing.
func (j Job) NeedsInputFraming(s Settings) bool {
	return s.IsRawStream(j.SourcePath) && !j.SourceHasAudio
}

// BuildEncodeArgs returns the first-pass ffmpeg arguments writing to target.
// The output format is forced to mp4 because target is a temporary name.
func BuildEncodeArgs(job Job, s Settings, target string) []string {
	fps := job.Plan.Formatted()
	args := []string{"-hide_banner", "-nostdin", "-y", "-fflags", "+genpts"}
	if job.NeedsInputFraming(s) {
		args = append(args, "-f", "hevc", "-framerate", fps)
	}
	args = append(args, "-i", job.SourcePath)
	args = append(args, videoArgs(s)...)
	args = append(args, "-r", fps, "-filter:v", "fps="+fps, "-fps_mode", "cfr")
	if job.SourceHasAudio {
		args = append(args, "-c:a", "aac", "-b:a", s.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-avoid_negative_ts", "make_zero", "-movflags", "+faststart", "-f", "mp4", target)
	return args
}

// BuildCorrectArgs returns the correction-pass arguments: the existing output
// is re-encoded with PTS scaled by multiplier and the planned rate re-asserted.
func BuildCorrectArgs(input string, multiplier float64, plan Plan, hasAudio bool, s Settings, target string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input,
		"-filter:v", "setpts=PTS*" + strconv.FormatFloat(multiplier, 'f', -1, 64),
		"-r", plan.Formatted(),
	}
	args = append(args, videoArgs(s)...)
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", s.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4", target)
	return args
}

func videoArgs(s Settings) []string {
	return []string{"-c:v", "libx264", "-preset", s.Preset, "-crf", strconv.Itoa(s.CRF), "-pix_fmt", "yuv420p"}
}

// Encoder runs ffmpeg. Both passes write to a pending file beside the output
// and rename it into place only after ffmpeg exits zero with a non-empty
// file, so the output path only ever holds a complete container.
type Encoder struct {
	Binary   string
	Settings Settings
	Timeout  time.Duration
	Executor Executor
}

// NewEncoder returns an Encoder for binary that shells out via os/exec.
func NewEncoder(binary string, settings Settings, timeout time.Duration) *Encoder {
	return &Encoder{Binary: binary, Settings: settings, Timeout: timeout, Executor: commandExecutor{}}
}

// Encode runs the first pass. Failures wrap ErrEncodeFailed.
func (e *Encoder) Encode(ctx context.Context, job Job) error {
	if err := e.runAtomic(ctx, job.OutputPath, func(target string) []string {
		return BuildEncodeArgs(job, e.Settings, target)
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return nil
}

// Correct re-encodes path in place with timestamps scaled by multiplier. On
// failure the file at path is left untouched and the error wraps
// ErrCorrectionFailed.
func (e *Encoder) Correct(ctx context.Context, path string, multiplier float64, plan Plan, hasAudio bool) error {
	if err := e.runAtomic(ctx, path, func(target string) []string {
		return BuildCorrectArgs(path, multiplier, plan, hasAudio, e.Settings, target)
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
	}
	return nil
}

func (e *Encoder) runAtomic(ctx context.Context, out string, build func(target string) []string) error {
	pending, err := renameio.NewPendingFile(out,
		renameio.WithTempDir(filepath.Dir(out)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "create pending output", out, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := e.run(ctx, build(pending.Name())); err != nil {
		return err
	}

	info, err := os.Stat(pending.Name())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "no output file produced", nil)
	case err != nil:
		return services.Wrap(services.ErrTransient, "transcode", "stat output", pending.Name(), err)
	case info.Size() == 0:
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "output file is empty", nil)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "replace output", out, err)
	}
	return nil
}

func (e *Encoder) run(ctx context.Context, args []string) error {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	runner := e.Executor
	if runner == nil {
		runner = commandExecutor{}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	_, err := runner.Run(ctx, binary, args)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcode", "ffmpeg", fmt.Sprintf("exceeded %s", e.Timeout), err)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrConfiguration, "transcode", "ffmpeg", "binary not found: "+binary, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg",
			fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), stderrTail(exitErr.Stderr)), nil)
	}
	return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "", err)
}

// stderrTail keeps the last few stderr lines, where ffmpeg reports the cause.
func stderrTail(stderr []byte) string {
	lines := bytes.Split(bytes.TrimSpace(stderr), []byte("\n"))
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if l := strings.TrimSpace(string(line)); l != "" {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		return "no stderr output"
	}
	return strings.Join(parts, " | ")
}
