// Package localdir serves segments from a directory on disk that mirrors the
// camera's FTP layout, for setups where another process mirrors the camera or
// the camera uploads over a mounted share.
package localdir
