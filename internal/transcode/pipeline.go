package transcode

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"camrelay/internal/logging"
	"camrelay/internal/media/ffprobe"
	"camrelay/internal/services"
)

// Prober is the subset of ffprobe queries the pipeline uses.
type Prober interface {
	FrameRate(ctx context.Context, path string) ffprobe.Field[ffprobe.Rate]
	HasAudio(ctx context.Context, path string) ffprobe.Field[bool]
	FrameCount(ctx context.Context, path string) ffprobe.Field[int64]
	Duration(ctx context.Context, path string) ffprobe.Field[float64]
}

// Transcoder runs the two ffmpeg passes.
type Transcoder interface {
	Encode(ctx context.Context, job Job) error
	Correct(ctx context.Context, path string, multiplier float64, plan Plan, hasAudio bool) error
}

// Policy carries the per-job timing knobs. It is passed explicitly so jobs
// never share mutable frame rate state.
type Policy struct {
	// TargetFPS forces the output rate when positive; zero auto-detects.
	TargetFPS   int
	FallbackFPS int
	Tolerance   float64
}

// DefaultPolicy auto-detects with a 25 fps fallback and 5% tolerance.
func DefaultPolicy() Policy {
	return Policy{FallbackFPS: DefaultFallbackFPS, Tolerance: DefaultTolerance}
}

// Outcome is the terminal result of one job. Exactly one applies.
type Outcome int

const (
	OutcomeEncodeFailed Outcome = iota
	OutcomeValidated
	OutcomeValidationSkipped
	OutcomeCorrected
	OutcomeCorrectionFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValidated:
		return "validated"
	case OutcomeValidationSkipped:
		return "validation_skipped"
	case OutcomeCorrected:
		return "corrected"
	case OutcomeCorrectionFailed:
		return "correction_failed"
	default:
		return "encode_failed"
	}
}

// Usable reports whether the job left a deliverable file at the output path.
func (o Outcome) Usable() bool {
	return o != OutcomeEncodeFailed
}

// State is a step of the per-job state machine.
type State int

const (
	StateStart State = iota
	StateProbing
	StateRateResolved
	StateEncoded
	StateEncodeFailed
	StateValidationSkipped
	StateValidated
	StateCorrecting
	StateCorrected
	StateCorrectionFailed
	StateDone
)

var stateNames = [...]string{
	StateStart:             "start",
	StateProbing:           "probing",
	StateRateResolved:      "rate_resolved",
	StateEncoded:           "encoded",
	StateEncodeFailed:      "encode_failed",
	StateValidationSkipped: "validation_skipped",
	StateValidated:         "validated",
	StateCorrecting:        "correcting",
	StateCorrected:         "corrected",
	StateCorrectionFailed:  "correction_failed",
	StateDone:              "done",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Request is one source file to transcode. AudioHint, when present, replaces
// the audio probe.
type Request struct {
	SourcePath string
	OutputPath string
	AudioHint  ffprobe.Field[bool]
}

// Report describes what happened to one job.
type Report struct {
	SourcePath   string
	OutputPath   string
	Source       ffprobe.MediaProbe
	Plan         Plan
	InputFraming bool
	Validation   Validation
	// Residual is the re-measured deviation after a successful correction.
	Residual      Validation
	Outcome       Outcome
	Trail         []State
	EncodeErr     error
	CorrectionErr error
	Elapsed       time.Duration
}

// Pipeline runs probe, resolve, encode, validate, and the optional
// correction for one file at a time.
type Pipeline struct {
	Prober  Prober
	Encoder Transcoder
	Policy  Policy
	// Settings decide raw-stream classification for the report; they should
	// match the encoder's.
	Settings Settings
	Logger   *slog.Logger
}

// Run processes req. It returns an error wrapping ErrEncodeFailed only when
// the first pass failed; every other outcome leaves a usable file at
// req.OutputPath and a nil error.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	m := &machine{p: p, req: req, logger: p.logger()}
	m.report.SourcePath = req.SourcePath
	m.report.OutputPath = req.OutputPath
	start := time.Now()

	state := StateStart
	for state != StateDone {
		m.report.Trail = append(m.report.Trail, state)
		state = m.step(ctx, state)
	}
	m.report.Trail = append(m.report.Trail, StateDone)
	m.report.Elapsed = time.Since(start)

	if m.report.Outcome == OutcomeEncodeFailed {
		return m.report, m.report.EncodeErr
	}
	return m.report, nil
}

// Check measures an existing output against its source without modifying
// either file.
func (p *Pipeline) Check(ctx context.Context, sourcePath, outputPath string, plan Plan) Validation {
	m := &machine{p: p, logger: p.logger()}
	m.job = Job{SourcePath: sourcePath, OutputPath: outputPath, Plan: plan}
	m.validate(ctx)
	return m.report.Validation
}

// Settle validates an existing output against its source and corrects it when
// the deviation exceeds tolerance. An output already within tolerance is left
// alone, so settling twice is a no-op the second time.
func (p *Pipeline) Settle(ctx context.Context, sourcePath, outputPath string, plan Plan, hasAudio bool) (Validation, Outcome, error) {
	m := &machine{p: p, logger: p.logger()}
	m.req = Request{SourcePath: sourcePath, OutputPath: outputPath}
	m.report.Plan = plan
	m.job = Job{SourcePath: sourcePath, OutputPath: outputPath, Plan: plan, SourceHasAudio: hasAudio}

	state := StateEncoded
	for state != StateDone {
		state = m.step(ctx, state)
	}
	if m.report.Outcome == OutcomeCorrectionFailed {
		return m.report.Validation, m.report.Outcome, m.report.CorrectionErr
	}
	return m.report.Validation, m.report.Outcome, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

type machine struct {
	p      *Pipeline
	req    Request
	job    Job
	report Report
	logger *slog.Logger
}

func (m *machine) step(ctx context.Context, state State) State {
	switch state {
	case StateStart:
		return StateProbing
	case StateProbing:
		return m.probe(ctx)
	case StateRateResolved:
		return m.encode(ctx)
	case StateEncoded:
		return m.validate(ctx)
	case StateValidated:
		if m.report.Validation.Verdict == VerdictExceeded {
			return StateCorrecting
		}
		m.report.Outcome = OutcomeValidated
		return StateDone
	case StateValidationSkipped:
		m.report.Outcome = OutcomeValidationSkipped
		return StateDone
	case StateCorrecting:
		return m.correct(ctx)
	case StateCorrected:
		m.report.Outcome = OutcomeCorrected
		m.recheck(ctx)
		return StateDone
	case StateCorrectionFailed:
		m.report.Outcome = OutcomeCorrectionFailed
		return StateDone
	case StateEncodeFailed:
		m.report.Outcome = OutcomeEncodeFailed
		return StateDone
	default:
		return StateDone
	}
}

func (m *machine) probe(ctx context.Context) State {
	ctx = services.WithStage(ctx, "probe")
	src := m.req.SourcePath
	m.report.Source.FrameRate = m.p.Prober.FrameRate(ctx, src)
	if m.req.AudioHint.OK {
		m.report.Source.Audio = m.req.AudioHint
	} else {
		m.report.Source.Audio = m.p.Prober.HasAudio(ctx, src)
	}

	log := logging.WithContext(ctx, m.logger)
	for _, field := range []struct{ name, reason string }{
		{"frame_rate", m.report.Source.FrameRate.Reason()},
		{"audio", m.report.Source.Audio.Reason()},
	} {
		if field.reason == "" {
			continue
		}
		logging.WarnWithContext(log, "source probe field unavailable", "probe_field_unavailable",
			logging.String("field", field.name),
			logging.String("reason", field.reason),
			logging.String("source", src),
			logging.String(logging.FieldImpact, "decision falls back to its default"),
			logging.String(logging.FieldErrorHint, "run camrelay probe on the file to inspect it"),
		)
	}

	policy := m.p.Policy
	m.report.Plan = Resolve(policy.TargetFPS, m.report.Source.FrameRate, policy.FallbackFPS)
	detected := "absent"
	if rate, ok := m.report.Source.FrameRate.Get(); ok {
		detected = rate.String()
	}
	log.Info("frame rate resolved",
		logging.Args(append(logging.DecisionAttrs("frame_rate", m.report.Plan.Source.String(), "first usable of configured, detected, fallback"),
			logging.String("fps", m.report.Plan.Formatted()),
			logging.Int("configured_fps", policy.TargetFPS),
			logging.String("detected_fps", detected),
			logging.Bool("has_audio", m.report.Source.HasAudio()),
		)...)...,
	)

	m.job = Job{
		SourcePath:     src,
		OutputPath:     m.req.OutputPath,
		Plan:           m.report.Plan,
		SourceHasAudio: m.report.Source.HasAudio(),
	}
	m.report.InputFraming = m.job.NeedsInputFraming(m.p.Settings)
	return StateRateResolved
}

func (m *machine) encode(ctx context.Context) State {
	ctx = services.WithStage(ctx, "encode")
	log := logging.WithContext(ctx, m.logger)
	if err := m.p.Encoder.Encode(ctx, m.job); err != nil {
		if !errors.Is(err, ErrEncodeFailed) {
			err = errors.Join(ErrEncodeFailed, err)
		}
		m.report.EncodeErr = err
		logging.ErrorWithContext(log, "first-pass encode failed", "encode_failed",
			logging.String("source", m.job.SourcePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg stderr in the error; the segment is retried next cycle"),
		)
		return StateEncodeFailed
	}
	log.Info("first-pass encode complete",
		logging.String("output", m.job.OutputPath),
		logging.String("fps", m.job.Plan.Formatted()),
		logging.Bool("input_framing", m.report.InputFraming),
		logging.Bool("audio", m.job.SourceHasAudio),
	)
	return StateEncoded
}

func (m *machine) validate(ctx context.Context) State {
	ctx = services.WithStage(ctx, "validate")
	log := logging.WithContext(ctx, m.logger)
	frames := m.p.Prober.FrameCount(ctx, m.job.SourcePath)
	duration := m.p.Prober.Duration(ctx, m.job.OutputPath)
	v := Validate(frames, m.job.Plan.Rate, duration, m.p.Policy.Tolerance)
	m.report.Validation = v

	if v.Verdict == VerdictSkipped {
		log.Info("duration validation skipped",
			logging.Args(append(logging.DecisionAttrs("duration_check", v.Verdict.String(), v.SkipReason),
				logging.String("output", m.job.OutputPath),
			)...)...,
		)
		return StateValidationSkipped
	}
	log.Info("duration validated",
		logging.Args(append(logging.DecisionAttrs("duration_check", v.Verdict.String(), "multiplier compared against tolerance"),
			logging.Int64("frame_count", v.FrameCount),
			logging.String("fps", m.job.Plan.Formatted()),
			logging.Float64("expected_seconds", v.ExpectedSeconds),
			logging.Float64("actual_seconds", v.ActualSeconds),
			logging.Float64("multiplier", v.Multiplier),
			logging.Float64("tolerance", v.Tolerance),
		)...)...,
	)
	return StateValidated
}

func (m *machine) correct(ctx context.Context) State {
	ctx = services.WithStage(ctx, "correct")
	log := logging.WithContext(ctx, m.logger)
	v := m.report.Validation
	err := m.p.Encoder.Correct(ctx, m.job.OutputPath, v.Multiplier, m.job.Plan, m.job.SourceHasAudio)
	if err != nil {
		m.report.CorrectionErr = err
		logging.WarnWithContext(log, "timestamp correction failed; keeping first-pass output", "correction_failed",
			logging.Float64("multiplier", v.Multiplier),
			logging.String("output", m.job.OutputPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "delivered video plays at the wrong speed"),
			logging.String(logging.FieldErrorHint, "check ffmpeg stderr in the error"),
		)
		return StateCorrectionFailed
	}
	log.Info("timestamp correction applied",
		logging.Float64("multiplier", v.Multiplier),
		logging.String("output", m.job.OutputPath),
		logging.String(logging.FieldEventType, "correction_applied"),
	)
	return StateCorrected
}

// recheck re-measures the corrected output for the report. It never triggers
// another correction.
func (m *machine) recheck(ctx context.Context) {
	ctx = services.WithStage(ctx, "recheck")
	frames := ffprobe.Present(m.report.Validation.FrameCount)
	duration := m.p.Prober.Duration(ctx, m.job.OutputPath)
	m.report.Residual = Validate(frames, m.job.Plan.Rate, duration, m.p.Policy.Tolerance)
	if m.report.Residual.Verdict == VerdictExceeded {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "corrected output still outside tolerance", "correction_residual",
			logging.Float64("multiplier", m.report.Residual.Multiplier),
			logging.String(logging.FieldImpact, "playback speed may still be off"),
		)
	}
}
