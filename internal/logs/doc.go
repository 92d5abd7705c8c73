// Package logs tails the relay's log file for the CLI.
//
// Tail reads with bounded memory, supports "last N lines" through a negative
// offset, filters by substring so one segment's lines can be followed, and
// polls for new lines in follow mode until the caller's context ends.
package logs
