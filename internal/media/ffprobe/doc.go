// Package ffprobe wraps the ffprobe queries used to time raw camera streams.
//
// Prober issues four independent scalar queries (average frame rate, audio
// presence, exact frame count, container duration). None of them return an
// error: each yields a Field that is either present or carries the reason it
// is absent, so callers can tell "this file has no frame rate" apart from
// "ffprobe is not installed" (ErrToolMissing).
//
// Inspect decodes the full JSON report for diagnostics.
package ffprobe
