package ffprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Executor abstracts command execution so probes can be tested without ffprobe.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// CommandExecutor runs commands with os/exec and returns stdout. On a non-zero
// exit the returned *exec.ExitError carries stderr.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Prober issues the four scalar ffprobe queries the transcode pipeline needs.
// Every query is independent and never returns an error: failures surface as
// an absent Field.
type Prober struct {
	Binary   string
	Timeout  time.Duration
	Executor Executor
}

// NewProber returns a Prober for binary that shells out via os/exec.
func NewProber(binary string, timeout time.Duration) *Prober {
	return &Prober{Binary: binary, Timeout: timeout, Executor: CommandExecutor{}}
}

// MediaProbe collects probe facts about one file. Each field is independent.
type MediaProbe struct {
	FrameRate  Field[Rate]
	Audio      Field[bool]
	FrameCount Field[int64]
	Duration   Field[float64]
}

// HasAudio reports audio presence, treating an unknown answer as no audio.
func (m MediaProbe) HasAudio() bool {
	return m.Audio.OK && m.Audio.Value
}

// ToolMissing reports whether any query failed because ffprobe is not installed.
func (m MediaProbe) ToolMissing() bool {
	return m.FrameRate.ToolMissing() || m.Audio.ToolMissing() || m.FrameCount.ToolMissing() || m.Duration.ToolMissing()
}

// Source runs the queries needed before encoding: frame rate and audio presence.
func (p *Prober) Source(ctx context.Context, path string) MediaProbe {
	return MediaProbe{
		FrameRate: p.FrameRate(ctx, path),
		Audio:     p.HasAudio(ctx, path),
	}
}

// FrameRate queries the first video stream's average frame rate.
func (p *Prober) FrameRate(ctx context.Context, path string) Field[Rate] {
	out, err := p.query(ctx, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=nokey=1:noprint_wrappers=1", path)
	if err != nil {
		return Absent[Rate](err)
	}
	if out == "" {
		return Absent[Rate](fmt.Errorf("%w: no video stream frame rate", ErrProbeUnavailable))
	}
	rate, err := ParseRate(out)
	if err != nil {
		return Absent[Rate](fmt.Errorf("%w: %w", ErrProbeUnavailable, err))
	}
	return Present(rate)
}

// HasAudio reports whether any audio stream index is listed.
func (p *Prober) HasAudio(ctx context.Context, path string) Field[bool] {
	out, err := p.query(ctx, "-v", "error", "-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "default=nokey=1:noprint_wrappers=1", path)
	if err != nil {
		return Absent[bool](err)
	}
	return Present(out != "")
}

// FrameCount decodes the first video stream to count frames exactly. This
// reads the whole file and is slow on long segments.
func (p *Prober) FrameCount(ctx context.Context, path string) Field[int64] {
	out, err := p.query(ctx, "-v", "error", "-count_frames", "-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-of", "default=nokey=1:noprint_wrappers=1", path)
	if err != nil {
		return Absent[int64](err)
	}
	if out == "" || out == "N/A" {
		return Absent[int64](fmt.Errorf("%w: frame count not reported", ErrProbeUnavailable))
	}
	n, err := strconv.ParseInt(out, 10, 64)
	if err != nil || n < 0 {
		return Absent[int64](fmt.Errorf("%w: frame count %q", ErrProbeUnavailable, out))
	}
	return Present(n)
}

// Duration reads the container-level duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) Field[float64] {
	out, err := p.query(ctx, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1", path)
	if err != nil {
		return Absent[float64](err)
	}
	if out == "" || out == "N/A" {
		return Absent[float64](fmt.Errorf("%w: duration not reported", ErrProbeUnavailable))
	}
	d, err := strconv.ParseFloat(out, 64)
	if err != nil || d <= 0 {
		return Absent[float64](fmt.Errorf("%w: duration %q", ErrProbeUnavailable, out))
	}
	return Present(d)
}

// query runs ffprobe and returns the first non-empty output line.
func (p *Prober) query(ctx context.Context, args ...string) (string, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	runner := p.Executor
	if runner == nil {
		runner = CommandExecutor{}
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	out, err := runner.Run(ctx, binary, args)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s: %w", ErrToolMissing, binary, err)
		}
		return "", fmt.Errorf("%w: %s", ErrProbeUnavailable, describeFailure(ctx, err))
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", nil
}

func describeFailure(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "ffprobe timed out"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stderr := bytes.TrimSpace(exitErr.Stderr); len(stderr) > 0 {
			return fmt.Sprintf("ffprobe exited %d: %s", exitErr.ExitCode(), lastLine(stderr))
		}
		return fmt.Sprintf("ffprobe exited %d", exitErr.ExitCode())
	}
	return err.Error()
}

func lastLine(b []byte) string {
	lines := bytes.Split(b, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if l := bytes.TrimSpace(lines[i]); len(l) > 0 {
			return string(l)
		}
	}
	return ""
}
