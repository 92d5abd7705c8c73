package preflight

import (
	"context"

	"camrelay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks plus Telegram when a bot is supplied.
func RunAll(ctx context.Context, cfg *config.Config, bot Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Source.Kind == config.SourceLocal {
		results = append(results, CheckDirectoryAccess("Local inbox", cfg.Source.LocalDir))
	}
	if bot != nil {
		results = append(results, CheckTelegram(ctx, bot))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
