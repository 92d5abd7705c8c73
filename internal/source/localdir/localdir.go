package localdir

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"camrelay/internal/fileutil"
	"camrelay/internal/services"
	"camrelay/internal/source"
)

// Dir reads segments from a local tree laid out like the camera's FTP root.
type Dir struct {
	root   string
	layout source.Layout
}

// New returns a Dir rooted at root.
func New(root string, layout source.Layout) *Dir {
	return &Dir{root: filepath.Clean(root), layout: layout}
}

// Opener returns a source.Opener that always yields d. The directory must exist.
func (d *Dir) Opener() source.Opener {
	return func(context.Context) (source.Source, error) {
		info, err := os.Stat(d.root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, services.Wrap(services.ErrTransient, "source", "open", "local inbox missing: "+d.root, err)
			}
			return nil, services.Wrap(services.ErrTransient, "source", "open", d.root, err)
		}
		if !info.IsDir() {
			return nil, services.Wrap(services.ErrConfiguration, "source", "open", d.root+" is not a directory", nil)
		}
		return d, nil
	}
}

// Root returns the inbox directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) List(ctx context.Context) ([]source.Segment, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "list", d.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	days := source.Days(names)
	if len(days) == 0 {
		return nil, source.ErrNoDays
	}

	var segments []source.Segment
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := os.ReadDir(d.recordDir(day))
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.Type().IsRegular() || !d.layout.Allowed(f.Name()) || isPartial(f.Name()) {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			segments = append(segments, source.Segment{
				Day:  day,
				Name: f.Name(),
				Key:  d.layout.Key(day, f.Name()),
				Size: info.Size(),
			})
		}
	}
	slices.SortStableFunc(segments, func(a, b source.Segment) int {
		if c := strings.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return segments, nil
}

func (d *Dir) Fetch(ctx context.Context, seg source.Segment, dst string) error {
	if err := fileutil.CopyFileVerified(ctx, d.path(seg), dst); err != nil {
		return services.Wrap(services.ErrTransient, "source", "fetch", seg.Key, err)
	}
	return nil
}

func (d *Dir) Remove(_ context.Context, seg source.Segment) error {
	if err := os.Remove(d.path(seg)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "source", "remove", seg.Key, err)
	}
	return nil
}

// Close is a no-op; the directory outlives a cycle.
func (d *Dir) Close() error { return nil }

func (d *Dir) recordDir(day string) string {
	return filepath.Join(d.root, day, d.layout.Subdir())
}

func (d *Dir) path(seg source.Segment) string {
	return filepath.Join(d.recordDir(seg.Day), seg.Name)
}

// isPartial skips files still being written by an uploader that uses dot-prefixed temp names.
func isPartial(name string) bool {
	return strings.HasPrefix(name, ".")
}
