package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"camrelay/internal/config"
	"camrelay/internal/deps"
	"camrelay/internal/media/ffprobe"
	"camrelay/internal/services"
)

// Pinger verifies bot credentials; *telegram.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// CheckTelegram verifies that the Bot API is reachable and the token is valid.
// It uses a 15-second timeout and a single attempt.
func CheckTelegram(ctx context.Context, bot Pinger) Result {
	const name = "Telegram"
	if bot == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	username, err := bot.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bot @%s reachable", username)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates ffmpeg and ffprobe plus the encoders the
// pipeline hard-codes. Both the daemon and the CLI status command use it.
func CheckSystemDeps(ctx context.Context, cfg *config.Config, run deps.Runner) []deps.Status {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	if len(statuses) > 0 && statuses[0].Available {
		for _, encoder := range []string{"libx264", "aac"} {
			statuses = append(statuses, deps.CheckEncoder(ctx, run, statuses[0].Path, encoder))
		}
	}
	return statuses
}

// RequireTools fails when a required binary is missing. A missing ffprobe
// is reported with ffprobe.ErrToolMissing so callers can tell it apart from a
// probe that merely returned no value.
func RequireTools(ctx context.Context, cfg *config.Config, run deps.Runner) error {
	var errs []error
	for _, status := range deps.Missing(CheckSystemDeps(ctx, cfg, run)) {
		cause := errors.New(status.Detail)
		if status.Name == "FFprobe" {
			cause = fmt.Errorf("%w: %s", ffprobe.ErrToolMissing, status.Detail)
		}
		errs = append(errs, services.Wrap(services.ErrConfiguration, "preflight", status.Name, status.Description, cause))
	}
	return errors.Join(errs...)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return err.Error()
}
