// Package metrics exposes Prometheus collectors for jobs, frame rate
// decisions, duration multipliers, stage timings, deliveries, and poll cycles.
// A nil *Recorder is valid and records nothing.
package metrics
