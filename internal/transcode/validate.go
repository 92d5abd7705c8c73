package transcode

import (
	"math"

	"camrelay/internal/media/ffprobe"
)

// DefaultTolerance is the accepted relative deviation between expected and
// actual output duration.
const DefaultTolerance = 0.05

// toleranceEpsilon keeps the boundary inclusive despite float error
// (|1.05 - 1| evaluates slightly above 0.05).
const toleranceEpsilon = 1e-9

// Verdict is the outcome of a duration check.
type Verdict int

const (
	// VerdictSkipped means there was not enough evidence to check timing.
	VerdictSkipped Verdict = iota
	VerdictWithin
	VerdictExceeded
)

func (v Verdict) String() string {
	switch v {
	case VerdictWithin:
		return "within_tolerance"
	case VerdictExceeded:
		return "exceeds_tolerance"
	default:
		return "skipped"
	}
}

// Validation is the derived comparison between expected and actual duration.
// Multiplier and the durations are zero when Verdict is VerdictSkipped.
type Validation struct {
	Verdict         Verdict
	FrameCount      int64
	ExpectedSeconds float64
	ActualSeconds   float64
	Multiplier      float64
	Tolerance       float64
	SkipReason      string
}

// WithinTolerance reports whether the output needs no correction. A skipped
// validation is not within tolerance; it is unverified.
func (v Validation) WithinTolerance() bool {
	return v.Verdict == VerdictWithin
}

// Deviation returns |multiplier - 1|.
func (v Validation) Deviation() float64 {
	return math.Abs(v.Multiplier - 1)
}

// Validate compares frameCount/rate against the measured output duration.
// Missing frame count, missing duration, or a non-positive rate skip the check.
func Validate(frameCount ffprobe.Field[int64], rate ffprobe.Rate, actual ffprobe.Field[float64], tolerance float64) Validation {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	v := Validation{Verdict: VerdictSkipped, Tolerance: tolerance}

	count, ok := frameCount.Get()
	if !ok {
		v.SkipReason = "source frame count unavailable: " + frameCount.Reason()
		return v
	}
	if count <= 0 {
		v.SkipReason = "source frame count is zero"
		return v
	}
	duration, ok := actual.Get()
	if !ok {
		v.SkipReason = "output duration unavailable: " + actual.Reason()
		return v
	}
	fps := rate.Float64()
	if fps <= 0 {
		v.SkipReason = "resolved frame rate is not positive"
		return v
	}

	v.FrameCount = count
	v.ExpectedSeconds = float64(count) / fps
	v.ActualSeconds = duration
	if duration > 0 {
		v.Multiplier = v.ExpectedSeconds / duration
	} else {
		v.Multiplier = 1
	}
	if v.Deviation() <= tolerance+toleranceEpsilon {
		v.Verdict = VerdictWithin
	} else {
		v.Verdict = VerdictExceeded
	}
	return v
}
