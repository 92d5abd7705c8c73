package daemonrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camrelay/internal/logging"
	"camrelay/internal/services"
	"camrelay/internal/source/localdir"
	"camrelay/internal/testsupport"
	"camrelay/internal/workflow"
)

func TestSourceOpenerSelectsKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, dir := SourceOpener(cfg, logging.NewNop()); dir != nil {
		t.Fatal("ftp source should not return a local directory")
	}

	local := testsupport.NewConfig(t, testsupport.WithLocalSource())
	open, dir := SourceOpener(local, logging.NewNop())
	if dir == nil || dir.Root() != local.Source.LocalDir {
		t.Fatalf("expected local directory at %s, got %v", local.Source.LocalDir, dir)
	}
	src, err := open(context.Background())
	if err != nil {
		t.Fatalf("open local source: %v", err)
	}
	if _, ok := src.(*localdir.Dir); !ok {
		t.Fatalf("unexpected source type %T", src)
	}
}

func TestBuildRunsEmptyCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLocalSource())
	rt, err := Build(context.Background(), cfg, logging.NewNop(), "run-1", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	if rt.watcher == nil {
		t.Fatal("expected inbox watcher for local source")
	}
	summary := rt.Manager.RunCycle(context.Background())
	if summary.Result != workflow.CycleEmpty {
		t.Fatalf("expected empty cycle, got %+v", summary)
	}
	if rt.Manager.Status().RunID != "run-1" {
		t.Fatalf("run id not propagated: %+v", rt.Manager.Status())
	}
}

func TestPrepareRequiresTools(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcode.FFmpegBinary = filepath.Join(t.TempDir(), "missing-ffmpeg")
	cfg.Transcode.FFprobeBinary = filepath.Join(t.TempDir(), "missing-ffprobe")

	err := prepare(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPrepareRejectsMissingCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Telegram.BotToken = ""
	if err := prepare(context.Background(), cfg, logging.NewNop()); err == nil {
		t.Fatal("expected missing bot token to fail validation")
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "camrelay-a.log")
	second := filepath.Join(dir, "camrelay-b.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	current := filepath.Join(dir, "camrelay.log")
	if err := ensureCurrentLogPointer(current, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(current, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(current)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "camrelay-b.log" {
		t.Fatalf("pointer should follow the latest run, got %q", data)
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b || !strings.Contains(a, "-") {
		t.Fatalf("unexpected run ids %q %q", a, b)
	}
}
