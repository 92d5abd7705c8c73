package source

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"
)

// DefaultRecordSubdir is the directory under each day holding segments.
const DefaultRecordSubdir = "record"

// ErrNoDays reports a reachable source with no day directories yet.
var ErrNoDays = errors.New("no day directories")

// Segment identifies one recorded file on a source.
type Segment struct {
	Day  string
	Name string
	// Key is the stable identity used by the delivered set: <day>/<record>/<name>.
	Key  string
	Size int64
}

// Ext returns the lowercased extension of the segment name.
func (s Segment) Ext() string {
	return strings.ToLower(path.Ext(s.Name))
}

// Source lists, fetches, and removes recorded segments.
type Source interface {
	List(ctx context.Context) ([]Segment, error)
	Fetch(ctx context.Context, seg Segment, dst string) error
	Remove(ctx context.Context, seg Segment) error
	Close() error
}

// Watcher is implemented by sources that can signal new files without polling.
type Watcher interface {
	Changes() <-chan struct{}
}

// Opener connects to a source for one cycle.
type Opener func(ctx context.Context) (Source, error)

// Layout holds the directory convention shared by every source.
type Layout struct {
	RecordSubdir string
	Extensions   []string
}

// Subdir returns the record directory name, defaulting to "record".
func (l Layout) Subdir() string {
	if s := strings.Trim(strings.TrimSpace(l.RecordSubdir), "/"); s != "" {
		return s
	}
	return DefaultRecordSubdir
}

// Key builds the segment identity for a day and file name.
func (l Layout) Key(day, name string) string {
	return day + "/" + l.Subdir() + "/" + name
}

// Allowed reports whether name has one of the configured extensions.
// An empty extension list accepts every file.
func (l Layout) Allowed(name string) bool {
	if len(l.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	return slices.Contains(l.Extensions, ext)
}

// IsDayDir reports whether name is a numeric day directory such as 20240131.
func IsDayDir(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Days filters names down to sorted day directories.
func Days(names []string) []string {
	days := make([]string, 0, len(names))
	for _, n := range names {
		n = path.Base(strings.TrimRight(n, "/"))
		if IsDayDir(n) {
			days = append(days, n)
		}
	}
	slices.Sort(days)
	return slices.Compact(days)
}
