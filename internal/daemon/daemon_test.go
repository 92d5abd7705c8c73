package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/goleak"

	"camrelay/internal/config"
	"camrelay/internal/daemon"
	"camrelay/internal/ledger"
	"camrelay/internal/logging"
	"camrelay/internal/metrics"
	"camrelay/internal/services"
	"camrelay/internal/source"
	"camrelay/internal/source/localdir"
	"camrelay/internal/testsupport"
	"camrelay/internal/transcode"
	"camrelay/internal/workflow"
)

type nopPipeline struct{}

func (nopPipeline) Run(context.Context, transcode.Request) (transcode.Report, error) {
	return transcode.Report{}, transcode.ErrEncodeFailed
}

type nopDeliverer struct{}

func (nopDeliverer) Send(context.Context, string, string) error { return nil }

type fixture struct {
	cfg    *config.Config
	store  *ledger.Store
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, open source.Opener) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithLocalSource())
	cfg.Metrics.Bind = "127.0.0.1:0"
	store := testsupport.MustOpenLedger(t, cfg)
	if open == nil {
		open = localdir.New(cfg.Source.LocalDir, source.Layout{}).Opener()
	}
	rec := metrics.New()
	mgr := workflow.NewManager(cfg, "run-daemon", workflow.Deps{
		Open:      open,
		Ledger:    store,
		Pipeline:  nopPipeline{},
		Deliverer: nopDeliverer{},
		Metrics:   rec,
		Logger:    logging.NewNop(),
	})
	d, err := daemon.New(cfg, logging.NewNop(), mgr, rec, store)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, daemon: d}
}

func startDaemon(t *testing.T, d *daemon.Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for d.HTTPAddr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("daemon did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cancel, errCh
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestDaemonRunServesAndStops(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.MarkDelivered(t, f.store, "20240101/record/a.265")
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cancel, errCh := startDaemon(t, f.daemon)
	base := "http://" + f.daemon.HTTPAddr()

	if code, body := get(t, base+"/healthz"); code != http.StatusOK || strings.TrimSpace(body) != "ok" {
		t.Fatalf("unexpected healthz response %d %q", code, body)
	}
	if code, body := get(t, base+"/metrics"); code != http.StatusOK || !strings.Contains(body, "camrelay_last_cycle_timestamp_seconds") {
		t.Fatalf("metrics endpoint missing relay series: %d", code)
	}

	_, body := get(t, base+"/api/status")
	var status map[string]any
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("decode status: %v (%q)", err, body)
	}
	if status["running"] != true || status["run_id"] != "run-daemon" || status["delivered"] != float64(1) {
		t.Fatalf("unexpected status payload %v", status)
	}

	other := flock.New(f.cfg.LockPath())
	if ok, err := other.TryLock(); err != nil || ok {
		t.Fatalf("lock should be held while running (ok=%v err=%v)", ok, err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error after cancel: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if f.daemon.HTTPAddr() != "" || f.daemon.Status(context.Background()).Running {
		t.Fatal("daemon should report stopped")
	}
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("lock should be released after stop (ok=%v err=%v)", ok, err)
	}
	_ = other.Unlock()
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	f := newFixture(t, nil)
	held := flock.New(f.cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if err := f.daemon.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestDaemonStopsOnFatalWorkflowError(t *testing.T) {
	open := func(context.Context) (source.Source, error) {
		return nil, services.Wrap(services.ErrConfiguration, "source", "connect", "ftp host not configured", nil)
	}
	f := newFixture(t, open)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon kept running after fatal workflow error")
	}
}

func TestDaemonWithoutBindSkipsHTTP(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Metrics.Bind = ""

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := f.daemon.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.daemon.HTTPAddr() != "" {
		t.Fatal("no listener expected without metrics.bind")
	}
}
