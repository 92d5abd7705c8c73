package transcode

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"camrelay/internal/media/ffprobe"
	"camrelay/internal/services"
)

// fakeFFmpeg records invocations and runs fn against the output target (the
// last argument).
type fakeFFmpeg struct {
	calls [][]string
	fn    func(ctx context.Context, target string) error
}

func (f *fakeFFmpeg) Run(ctx context.Context, _ string, args []string) ([]byte, error) {
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.fn == nil {
		return nil, nil
	}
	return nil, f.fn(ctx, args[len(args)-1])
}

func writes(content string) func(context.Context, string) error {
	return func(_ context.Context, target string) error {
		return os.WriteFile(target, []byte(content), 0o644)
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBuildEncodeArgsRawStreamWithoutAudio(t *testing.T) {
	job := Job{
		SourcePath: "/work/clip.265",
		OutputPath: "/work/clip.mp4",
		Plan:       Plan{Rate: mkRate(25, 1), Source: PlanFallback},
	}
	got := BuildEncodeArgs(job, DefaultSettings(), "/work/.clip.mp4123")
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-fflags", "+genpts",
		"-f", "hevc", "-framerate", "25",
		"-i", "/work/clip.265",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23", "-pix_fmt", "yuv420p",
		"-r", "25", "-filter:v", "fps=25", "-fps_mode", "cfr",
		"-an",
		"-avoid_negative_ts", "make_zero", "-movflags", "+faststart", "-f", "mp4", "/work/.clip.mp4123",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("encode args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildEncodeArgsWithAudioSkipsInputFraming(t *testing.T) {
	job := Job{
		SourcePath:     "/work/clip.265",
		Plan:           Plan{Rate: mkRate(30000, 1001), Source: PlanDetected},
		SourceHasAudio: true,
	}
	got := BuildEncodeArgs(job, DefaultSettings(), "out")
	if slices.Contains(got, "hevc") || slices.Contains(got, "-framerate") {
		t.Fatalf("audio sources must not get input framing: %v", got)
	}
	if !containsSeq(got, "-c:a", "aac", "-b:a", "128k") {
		t.Fatalf("expected AAC audio directive: %v", got)
	}
	if slices.Contains(got, "-an") {
		t.Fatalf("audio must not be excluded: %v", got)
	}
	if !containsSeq(got, "-r", "29.970", "-filter:v", "fps=29.970") {
		t.Fatalf("expected fractional rate formatting: %v", got)
	}
}

func TestBuildEncodeArgsContainerSourceSkipsInputFraming(t *testing.T) {
	job := Job{SourcePath: "/work/clip.250", Plan: Plan{Rate: mkRate(25, 1)}}
	got := BuildEncodeArgs(job, DefaultSettings(), "out")
	if slices.Contains(got, "-framerate") {
		t.Fatalf(".250 is containerized; no input framing expected: %v", got)
	}
	if !slices.Contains(got, "-an") {
		t.Fatalf("expected audio exclusion: %v", got)
	}
}

func TestIsRawStreamIsCaseInsensitive(t *testing.T) {
	s := DefaultSettings()
	for _, path := range []string{"a.265", "A.H265", "b.HEVC"} {
		if !s.IsRawStream(path) {
			t.Errorf("expected %s to be raw", path)
		}
	}
	for _, path := range []string{"a.250", "a.mp4", "noext"} {
		if s.IsRawStream(path) {
			t.Errorf("expected %s not to be raw", path)
		}
	}
}

func TestBuildCorrectArgs(t *testing.T) {
	got := BuildCorrectArgs("/w/out.mp4", 30.0/36.0, Plan{Rate: mkRate(25, 1)}, false, DefaultSettings(), "/w/.out.mp4tmp")
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "/w/out.mp4",
		"-filter:v", "setpts=PTS*0.8333333333333334",
		"-r", "25",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23", "-pix_fmt", "yuv420p",
		"-an",
		"-movflags", "+faststart", "-f", "mp4", "/w/.out.mp4tmp",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("correct args mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeWritesOutputAtomically(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip.mp4")
	ff := &fakeFFmpeg{fn: writes("first-pass")}
	enc := &Encoder{Binary: "ffmpeg", Settings: DefaultSettings(), Executor: ff}

	if err := enc.Encode(context.Background(), Job{SourcePath: "clip.250", OutputPath: out, Plan: Plan{Rate: mkRate(25, 1)}}); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "first-pass" {
		t.Fatalf("unexpected output %q err=%v", data, err)
	}
	target := ff.calls[0][len(ff.calls[0])-1]
	if target == out || filepath.Dir(target) != dir {
		t.Fatalf("ffmpeg should write a sibling temp file, got %q", target)
	}
	if names := dirNames(t, dir); !slices.Equal(names, []string{"clip.mp4"}) {
		t.Fatalf("expected only the output to remain, got %v", names)
	}
}

func TestEncodeFailureLeavesNoOutput(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{name: "non-zero exit", fn: func(_ context.Context, target string) error {
			_ = os.WriteFile(target, []byte("partial"), 0o644)
			return &exec.ExitError{Stderr: []byte("Invalid data found when processing input")}
		}},
		{name: "empty output", fn: func(context.Context, string) error { return nil }},
		{name: "output removed", fn: func(_ context.Context, target string) error { return os.Remove(target) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "clip.mp4")
			enc := &Encoder{Settings: DefaultSettings(), Executor: &fakeFFmpeg{fn: tt.fn}}
			err := enc.Encode(context.Background(), Job{SourcePath: "clip.265", OutputPath: out, Plan: Plan{Rate: mkRate(25, 1)}})
			if !errors.Is(err, ErrEncodeFailed) {
				t.Fatalf("expected ErrEncodeFailed, got %v", err)
			}
			if names := dirNames(t, dir); len(names) != 0 {
				t.Fatalf("expected no files after failure, got %v", names)
			}
		})
	}
}

func TestEncodeTimeoutIsFailure(t *testing.T) {
	dir := t.TempDir()
	enc := &Encoder{
		Settings: DefaultSettings(),
		Timeout:  20 * time.Millisecond,
		Executor: &fakeFFmpeg{fn: func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}
	err := enc.Encode(context.Background(), Job{SourcePath: "a.265", OutputPath: filepath.Join(dir, "a.mp4"), Plan: Plan{Rate: mkRate(25, 1)}})
	if !errors.Is(err, ErrEncodeFailed) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout encode failure, got %v", err)
	}
}

func TestCorrectReplacesWithExactBytes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(out, []byte("first-pass"), 0o644); err != nil {
		t.Fatal(err)
	}
	ff := &fakeFFmpeg{fn: func(_ context.Context, target string) error {
		// The input must still be intact while the corrected file is written.
		if data, _ := os.ReadFile(out); string(data) != "first-pass" {
			t.Errorf("output path changed during correction: %q", data)
		}
		return os.WriteFile(target, []byte("corrected"), 0o644)
	}}
	enc := &Encoder{Settings: DefaultSettings(), Executor: ff}

	if err := enc.Correct(context.Background(), out, 0.8, Plan{Rate: mkRate(25, 1)}, false); err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "corrected" {
		t.Fatalf("expected corrected bytes, got %q", data)
	}
	if names := dirNames(t, dir); !slices.Equal(names, []string{"clip.mp4"}) {
		t.Fatalf("temporary files left behind: %v", names)
	}
}

func TestCorrectFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(out, []byte("first-pass"), 0o644); err != nil {
		t.Fatal(err)
	}
	enc := &Encoder{Settings: DefaultSettings(), Executor: &fakeFFmpeg{fn: func(_ context.Context, target string) error {
		_ = os.WriteFile(target, []byte("half"), 0o644)
		return &exec.ExitError{}
	}}}

	err := enc.Correct(context.Background(), out, 0.8, Plan{Rate: mkRate(25, 1)}, false)
	if !errors.Is(err, ErrCorrectionFailed) {
		t.Fatalf("expected ErrCorrectionFailed, got %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "first-pass" {
		t.Fatalf("original output must be retained, got %q", data)
	}
	if names := dirNames(t, dir); !slices.Equal(names, []string{"clip.mp4"}) {
		t.Fatalf("temporary files left behind: %v", names)
	}
}

func TestEncodeMissingBinaryIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	enc := NewEncoder("camrelay-ffmpeg-does-not-exist", DefaultSettings(), time.Second)
	err := enc.Encode(context.Background(), Job{SourcePath: "a.250", OutputPath: filepath.Join(dir, "a.mp4"), Plan: Plan{Rate: mkRate(25, 1)}})
	if !errors.Is(err, ErrEncodeFailed) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func containsSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		if slices.Equal(args[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func mkRate(num, den int64) ffprobe.Rate {
	return ffprobe.Rate{Num: num, Den: den}
}
