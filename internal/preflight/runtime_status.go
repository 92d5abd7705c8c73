package preflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"camrelay/internal/source"
)

// SourceProbe is a snapshot of the segment source for status output.
type SourceProbe struct {
	Reachable bool
	Days      int
	Segments  int
	Detail    string
}

// ProbeSource opens the source once, lists it, and closes it.
func ProbeSource(ctx context.Context, open source.Opener) SourceProbe {
	if open == nil {
		return SourceProbe{Detail: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	src, err := open(ctx)
	if err != nil {
		return SourceProbe{Detail: summarizeNetError(err)}
	}
	defer src.Close()

	segments, err := src.List(ctx)
	if errors.Is(err, source.ErrNoDays) {
		return SourceProbe{Reachable: true, Detail: "no day directories yet"}
	}
	if err != nil {
		return SourceProbe{Reachable: true, Detail: summarizeNetError(err)}
	}
	days := map[string]struct{}{}
	for _, seg := range segments {
		days[seg.Day] = struct{}{}
	}
	return SourceProbe{Reachable: true, Days: len(days), Segments: len(segments)}
}

// SourceDetail renders a display-friendly summary for status output.
func (p SourceProbe) SourceDetail() string {
	switch {
	case !p.Reachable:
		return "unreachable: " + p.Detail
	case p.Detail != "":
		return p.Detail
	default:
		return fmt.Sprintf("%d segments across %d days", p.Segments, p.Days)
	}
}
