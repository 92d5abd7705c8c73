package localdir

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"camrelay/internal/logging"
	"camrelay/internal/source"
)

const defaultDebounce = 2 * time.Second

// Watcher signals when new files land anywhere under the inbox.
type Watcher struct {
	dir      *Dir
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	changes  chan struct{}
	done     chan struct{}
}

// NewWatcher starts watching d. Events are coalesced for debounce before a
// single signal is sent; a zero debounce uses two seconds.
func NewWatcher(ctx context.Context, d *Dir, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		dir:      d,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "inbox_watcher"),
		fsw:      fsw,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := w.addTree(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.loop(ctx)
	return w, nil
}

var _ source.Watcher = (*Watcher)(nil)

// Changes delivers at most one pending signal.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

// addTree watches the root, each day directory, and each record directory.
func (w *Watcher) addTree() error {
	if err := w.fsw.Add(w.dir.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && source.IsDayDir(e.Name()) {
			w.addDay(filepath.Join(w.dir.root, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) addDay(dayDir string) {
	_ = w.fsw.Add(dayDir)
	record := filepath.Join(dayDir, w.dir.layout.Subdir())
	if info, err := os.Stat(record); err == nil && info.IsDir() {
		_ = w.fsw.Add(record)
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.track(event)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watch error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new segments are picked up on the next poll instead"),
			)
		case <-timerC:
			timerC = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

// track starts watching directories created after startup.
func (w *Watcher) track(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	parent := filepath.Dir(event.Name)
	base := filepath.Base(event.Name)
	switch {
	case parent == w.dir.root && source.IsDayDir(base):
		w.addDay(event.Name)
		w.logger.Debug("watching new day directory", logging.String("dir", event.Name))
	case base == w.dir.layout.Subdir() && filepath.Dir(parent) == w.dir.root:
		_ = w.fsw.Add(event.Name)
	}
}
