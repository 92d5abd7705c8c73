// Package daemonrun turns a loaded config into a running relay: it sets up
// the per-run log file, validates configuration and tools, wires the source,
// ledger, pipeline, and Telegram client, and hands the result to the daemon.
package daemonrun
