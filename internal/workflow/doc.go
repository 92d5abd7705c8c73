// Package workflow runs the relay loop.
//
// Each cycle opens the segment source, lists day directories oldest first,
// and for every segment not yet in the ledger's delivered set: downloads it
// into a per-cycle scratch directory, runs the transcode pipeline, uploads
// the result to Telegram, and records the delivery. Only a delivered segment
// is marked; a failed fetch, encode, or upload leaves it for the next cycle.
//
// Between cycles the Manager sleeps for the poll interval, or the shorter
// retry intervals after a connection failure or an empty source. A local
// inbox watcher can cut the sleep short.
package workflow
