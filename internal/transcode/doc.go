// Package transcode turns a raw camera segment into a streamable MP4 with
// trustworthy timing.
//
// A job moves through a small state machine: probe the source, resolve the
// output frame rate (configured, detected, or fallback), run a first-pass
// libx264 encode, compare the source frame count at that rate against the
// measured output duration, and, when the deviation exceeds tolerance, run a
// second pass that rescales presentation timestamps. Only a failed first pass
// is fatal; a failed correction keeps the playable first-pass file.
//
// Both passes write to a pending file beside the output and rename it into
// place, so the output path never holds a partial container.
package transcode
