package transcode

import "errors"

var (
	// ErrEncodeFailed means the first pass produced no usable output. It is the
	// only failure that aborts a job.
	ErrEncodeFailed = errors.New("encode failed")
	// ErrCorrectionFailed means the timestamp correction pass failed. The
	// first-pass output is kept and delivered.
	ErrCorrectionFailed = errors.New("timestamp correction failed")
)
