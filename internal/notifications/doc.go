// Package notifications sends operator alerts to ntfy.
//
// The relay already delivers every video to Telegram, so ntfy is reserved for
// things an operator should act on: failed encodes and uploads, plus timing
// corrections when notifications.corrections is enabled. Without a topic the
// service is a no-op.
package notifications
