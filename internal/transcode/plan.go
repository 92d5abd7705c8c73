package transcode

import (
	"math"
	"strconv"

	"camrelay/internal/media/ffprobe"
)

// DefaultFallbackFPS is used when neither configuration nor the source supply a rate.
const DefaultFallbackFPS = 25

// PlanSource records which input decided the output frame rate.
type PlanSource int

const (
	PlanConfigured PlanSource = iota + 1
	PlanDetected
	PlanFallback
)

func (s PlanSource) String() string {
	switch s {
	case PlanConfigured:
		return "configured"
	case PlanDetected:
		return "detected"
	case PlanFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Plan is the resolved output frame rate for one job.
type Plan struct {
	Rate   ffprobe.Rate
	Source PlanSource
}

// FPS returns the planned rate in frames per second.
func (p Plan) FPS() float64 {
	return p.Rate.Float64()
}

// Formatted renders the planned rate the way it is passed to ffmpeg.
func (p Plan) Formatted() string {
	return FormatRate(p.FPS())
}

// Resolve picks the output frame rate. A positive configured rate wins, then a
// non-zero detected rate, then fallback (DefaultFallbackFPS when fallback <= 0).
func Resolve(configured int, detected ffprobe.Field[ffprobe.Rate], fallback int) Plan {
	if configured > 0 {
		return Plan{Rate: ffprobe.RateFromInt(configured), Source: PlanConfigured}
	}
	if rate, ok := detected.Get(); ok && !rate.IsZero() {
		return Plan{Rate: rate, Source: PlanDetected}
	}
	if fallback <= 0 {
		fallback = DefaultFallbackFPS
	}
	return Plan{Rate: ffprobe.RateFromInt(fallback), Source: PlanFallback}
}

// integralTolerance is how close a rate must be to a whole number to be
// rendered without decimals. The extra 1e-9 absorbs float error at the edge
// (24 - 23.999 is slightly above 1e-3 in binary floating point).
const integralTolerance = 1e-3 + 1e-9

// FormatRate renders fps as an integer when it is within 1e-3 of one and with
// exactly three decimals otherwise: 25 -> "25", 29.97 -> "29.970", 23.999 -> "24".
func FormatRate(fps float64) string {
	nearest := math.Round(fps)
	if math.Abs(fps-nearest) <= integralTolerance {
		return strconv.FormatInt(int64(nearest), 10)
	}
	return strconv.FormatFloat(fps, 'f', 3, 64)
}
