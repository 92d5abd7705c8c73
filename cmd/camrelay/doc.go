// Command camrelay relays recorded camera segments from an FTP server (or a
// local inbox) to a Telegram chat, transcoding each to H.264 MP4 and
// correcting playback speed when the encoded duration drifts.
//
// Run "camrelay run" for the daemon loop, "camrelay once" for a single cycle,
// and "camrelay transcode" or "camrelay verify" to work on local files.
package main
