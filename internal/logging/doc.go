// Package logging assembles structured slog loggers and formatting helpers used
// across camrelay.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, stages, and correlation IDs. Timing decisions (frame rate
// source, expected vs actual duration, correction multiplier) are logged via
// DecisionAttrs so an operator can audit them after the fact.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
