package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/notifications"
	"camrelay/internal/source"
	"camrelay/internal/source/localdir"
	"camrelay/internal/testsupport"
	"camrelay/internal/transcode"
)

type stubPipeline struct {
	mu      sync.Mutex
	seen    []string
	fail    map[string]error
	outcome transcode.Outcome
}

func (s *stubPipeline) Run(_ context.Context, req transcode.Request) (transcode.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := filepath.Base(req.SourcePath)
	s.seen = append(s.seen, name)
	report := transcode.Report{SourcePath: req.SourcePath, OutputPath: req.OutputPath}
	if err := s.fail[name]; err != nil {
		report.Outcome = transcode.OutcomeEncodeFailed
		report.EncodeErr = err
		return report, err
	}
	if err := os.WriteFile(req.OutputPath, []byte("mp4"), 0o644); err != nil {
		return report, err
	}
	report.Outcome = transcode.OutcomeValidated
	if s.outcome.Usable() {
		report.Outcome = s.outcome
	}
	return report, nil
}

type sent struct {
	name    string
	caption string
}

type stubDeliverer struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]error
}

func (s *stubDeliverer) Send(_ context.Context, path, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := s.fail[filepath.Base(path)]; err != nil {
		return err
	}
	s.sent = append(s.sent, sent{name: filepath.Base(path), caption: caption})
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) has(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type harness struct {
	cfg      *config.Config
	inbox    string
	ledger   *ledger.Store
	pipeline *stubPipeline
	bot      *stubDeliverer
	notifier *recordingNotifier
	manager  *Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithLocalSource()}, opts...)...)
	cfg.Telegram.Caption = "{title} {day}"

	h := &harness{
		cfg:      cfg,
		inbox:    cfg.Source.LocalDir,
		ledger:   testsupport.MustOpenLedger(t, cfg),
		pipeline: &stubPipeline{fail: map[string]error{}},
		bot:      &stubDeliverer{fail: map[string]error{}},
		notifier: &recordingNotifier{},
	}
	dir := localdir.New(cfg.Source.LocalDir, source.Layout{Extensions: cfg.FTP.Extensions})
	h.manager = NewManager(cfg, "run-test", Deps{
		Open:      dir.Opener(),
		Ledger:    h.ledger,
		Pipeline:  h.pipeline,
		Deliverer: h.bot,
		Notifier:  h.notifier,
		Logger:    logging.NewNop(),
		Now:       stepClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	})
	return h
}

func (h *harness) segment(t *testing.T, day, name string) {
	t.Helper()
	testsupport.WriteSegment(t, h.inbox, day, name, 64)
}

func (h *harness) delivered(t *testing.T, key string) bool {
	t.Helper()
	ok, err := h.ledger.Has(context.Background(), key)
	if err != nil {
		t.Fatalf("ledger.Has: %v", err)
	}
	return ok
}

func failingOpener(err error) source.Opener {
	return func(context.Context) (source.Source, error) { return nil, err }
}

var errBoom = errors.New("boom")

// stepClock advances one second per call so job history orders deterministically.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}
