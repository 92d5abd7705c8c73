// Package ledger stores which camera segments have been delivered and a
// history of transcode jobs in a local SQLite database.
//
// The delivered table is an append-only set keyed by "<day>/record/<name>"; the
// poll loop consults it before downloading so a restart never resends a
// segment. The jobs table backs the history and status commands.
package ledger
