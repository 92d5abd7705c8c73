package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the relay's collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	jobs          *prometheus.CounterVec
	planSources   *prometheus.CounterVec
	multiplier    prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	deliveries    *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	lastCycle     prometheus.Gauge
	pending       prometheus.Gauge
}

// New registers every collector plus Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camrelay_jobs_total",
			Help: "Transcode jobs by terminal outcome",
		}, []string{"outcome"}),
		planSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camrelay_frame_rate_plans_total",
			Help: "Frame rate decisions by source (configured, detected, fallback)",
		}, []string{"source"}),
		multiplier: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camrelay_duration_multiplier",
			Help:    "Expected over actual output duration for validated segments",
			Buckets: []float64{0.5, 0.75, 0.9, 0.95, 1, 1.05, 1.1, 1.25, 1.5, 2},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "camrelay_stage_duration_seconds",
			Help:    "Wall time spent per workflow stage",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"stage"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camrelay_deliveries_total",
			Help: "Telegram uploads by result",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camrelay_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camrelay_last_cycle_timestamp_seconds",
			Help: "Unix time the last poll cycle finished",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camrelay_pending_segments",
			Help: "Undelivered segments seen in the last listing",
		}),
	}
	reg.MustRegister(
		r.jobs, r.planSources, r.multiplier, r.stageDuration,
		r.deliveries, r.cycles, r.lastCycle, r.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveJob records a finished transcode job.
func (r *Recorder) ObserveJob(outcome, planSource string, multiplier float64, validated bool) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(normalizeOutcome(outcome)).Inc()
	r.planSources.WithLabelValues(normalizePlanSource(planSource)).Inc()
	if validated && multiplier > 0 {
		r.multiplier.Observe(multiplier)
	}
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(normalizeStage(stage)).Observe(elapsed.Seconds())
}

// ObserveDelivery counts one upload attempt.
func (r *Recorder) ObserveDelivery(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.deliveries.WithLabelValues("ok").Inc()
		return
	}
	r.deliveries.WithLabelValues("failed").Inc()
}

// ObserveCycle counts a finished cycle and stamps its completion time.
func (r *Recorder) ObserveCycle(result string, pending int, at time.Time) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(normalizeCycleResult(result)).Inc()
	r.pending.Set(float64(pending))
	r.lastCycle.Set(float64(at.Unix()))
}

func normalizeOutcome(outcome string) string {
	switch v := strings.ToLower(strings.TrimSpace(outcome)); v {
	case "validated", "validation_skipped", "corrected", "correction_failed", "encode_failed":
		return v
	default:
		return "unknown"
	}
}

func normalizePlanSource(source string) string {
	switch v := strings.ToLower(strings.TrimSpace(source)); v {
	case "configured", "detected", "fallback":
		return v
	default:
		return "unknown"
	}
}

func normalizeStage(stage string) string {
	switch v := strings.ToLower(strings.TrimSpace(stage)); v {
	case "fetch", "transcode", "deliver", "remove":
		return v
	default:
		return "other"
	}
}

func normalizeCycleResult(result string) string {
	switch v := strings.ToLower(strings.TrimSpace(result)); v {
	case "ok", "empty", "connect_failed", "list_failed":
		return v
	default:
		return "unknown"
	}
}
