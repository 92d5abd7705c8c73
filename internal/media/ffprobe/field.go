package ffprobe

import (
	"errors"
	"io/fs"
	"os/exec"
)

var (
	// ErrProbeUnavailable marks a single field ffprobe could not determine.
	// It degrades the decision that depended on the field and nothing else.
	ErrProbeUnavailable = errors.New("probe field unavailable")
	// ErrToolMissing means the ffprobe binary itself could not be executed.
	ErrToolMissing = errors.New("ffprobe binary not found")
)

// Field is the outcome of one probe query. When OK is false, Err explains why
// the value is absent and wraps ErrProbeUnavailable or ErrToolMissing.
type Field[T any] struct {
	Value T
	OK    bool
	Err   error
}

func Present[T any](v T) Field[T] {
	return Field[T]{Value: v, OK: true}
}

func Absent[T any](err error) Field[T] {
	if err == nil {
		err = ErrProbeUnavailable
	}
	return Field[T]{Err: err}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.OK
}

// ToolMissing reports whether the field is absent because ffprobe could not
// be run at all, as opposed to the file lacking the information.
func (f Field[T]) ToolMissing() bool {
	return !f.OK && errors.Is(f.Err, ErrToolMissing)
}

// Reason renders why the field is absent, or "" when present.
func (f Field[T]) Reason() string {
	if f.OK {
		return ""
	}
	if f.Err == nil {
		return ErrProbeUnavailable.Error()
	}
	return f.Err.Error()
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
