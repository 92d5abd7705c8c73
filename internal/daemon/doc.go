// Package daemon coordinates the long-running camrelay process.
//
// It holds a flock-based lock in the state directory so only one relay runs
// against a ledger, supervises the workflow loop and the optional HTTP
// listener in one errgroup, and serves Prometheus metrics plus a JSON status
// document on metrics.bind.
//
// Keep orchestration here: the fetch, transcode, and deliver steps live in the
// workflow package.
package daemon
