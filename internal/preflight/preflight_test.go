package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"camrelay/internal/config"
	"camrelay/internal/media/ffprobe"
	"camrelay/internal/services"
	"camrelay/internal/source"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

type stubPinger struct {
	name string
	err  error
}

func (s stubPinger) Ping(context.Context) (string, error) { return s.name, s.err }

func TestCheckTelegram(t *testing.T) {
	if r := CheckTelegram(context.Background(), stubPinger{name: "cam_bot"}); !r.Passed || r.Detail != "bot @cam_bot reachable" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckTelegram(context.Background(), stubPinger{err: errors.New("401 Unauthorized")}); r.Passed {
		t.Fatal("expected failure for rejected token")
	}
	if r := CheckTelegram(context.Background(), stubPinger{err: context.DeadlineExceeded}); r.Detail != "check timed out (API unresponsive)" {
		t.Fatalf("unexpected timeout detail %q", r.Detail)
	}
	if r := CheckTelegram(context.Background(), nil); r.Passed {
		t.Fatal("nil pinger should not pass")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_LocalSource(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Source.Kind = config.SourceLocal
	cfg.Source.LocalDir = t.TempDir()

	results := RunAll(context.Background(), &cfg, stubPinger{name: "bot"})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRequireToolsFlagsMissingFFprobe(t *testing.T) {
	cfg := config.Default()
	cfg.Transcode.FFmpegBinary = "definitely-not-ffmpeg"
	cfg.Transcode.FFprobeBinary = "definitely-not-ffprobe"

	err := RequireTools(context.Background(), &cfg, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !errors.Is(err, ffprobe.ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing for ffprobe, got %v", err)
	}
}

type listSource struct {
	segs []source.Segment
	err  error
}

func (l listSource) List(context.Context) ([]source.Segment, error) { return l.segs, l.err }

func (listSource) Fetch(context.Context, source.Segment, string) error { return nil }

func (listSource) Remove(context.Context, source.Segment) error { return nil }

func (listSource) Close() error { return nil }

func TestProbeSource(t *testing.T) {
	open := func(src source.Source, err error) source.Opener {
		return func(context.Context) (source.Source, error) { return src, err }
	}

	p := ProbeSource(context.Background(), open(listSource{segs: []source.Segment{
		{Day: "20240101"}, {Day: "20240101"}, {Day: "20240102"},
	}}, nil))
	if !p.Reachable || p.Days != 2 || p.Segments != 3 {
		t.Fatalf("unexpected probe %+v", p)
	}
	if p.SourceDetail() != "3 segments across 2 days" {
		t.Fatalf("unexpected detail %q", p.SourceDetail())
	}

	p = ProbeSource(context.Background(), open(listSource{err: source.ErrNoDays}, nil))
	if !p.Reachable || p.SourceDetail() != "no day directories yet" {
		t.Fatalf("unexpected empty probe %+v", p)
	}

	p = ProbeSource(context.Background(), open(nil, errors.New("connection refused")))
	if p.Reachable || p.SourceDetail() != "unreachable: connection refused" {
		t.Fatalf("unexpected unreachable probe %+v", p)
	}
}
