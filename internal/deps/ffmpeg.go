package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 15 * time.Second

// Runner executes a binary and returns its stdout.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).Output() //nolint:gosec
}

// CheckEncoder reports whether ffmpeg was built with the named encoder.
// The pipeline always encodes with libx264 and aac.
func CheckEncoder(ctx context.Context, run Runner, ffmpeg, encoder string) Status {
	if run == nil {
		run = execRunner
	}
	status := Status{
		Name:        "FFmpeg " + encoder,
		Command:     ffmpeg,
		Description: fmt.Sprintf("ffmpeg encoder %s", encoder),
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := run(ctx, ffmpeg, "-hide_banner", "-encoders")
	if err != nil {
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	if hasEncoder(out, encoder) {
		status.Available = true
		return status
	}
	status.Detail = fmt.Sprintf("encoder %q not compiled into %s", encoder, ffmpeg)
	return status
}

// Version returns the first line of `<binary> -version`.
func Version(ctx context.Context, run Runner, binary string) (string, error) {
	if run == nil {
		run = execRunner
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := run(ctx, binary, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// hasEncoder scans `ffmpeg -encoders` output, whose rows look like
// " V....D libx264              libx264 H.264 ...".
func hasEncoder(listing []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == encoder {
			return true
		}
	}
	return false
}
