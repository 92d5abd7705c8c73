// Package preflight provides readiness checks for the binaries, directories,
// and services camrelay depends on.
//
// These checks run in two contexts:
//   - The daemon calls RequireTools and RunAll before the first cycle. A
//     missing ffmpeg or ffprobe stops startup.
//   - The CLI "camrelay status" command uses individual checks to display
//     health, including a one-shot listing of the segment source.
package preflight
