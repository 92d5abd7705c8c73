// Package services defines shared utilities consumed by the relay pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from ffmpeg,
//     the FTP source, and Telegram are classified the same way.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform.
package services
