package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"camrelay/internal/config"
	"camrelay/internal/ledger"
	"camrelay/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithLocalSource())
	home := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"FTP_HOST", "FTP_USER", "FTP_PASSWORD", "BOT_TOKEN", "CHAT_ID", "TARGET_FPS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsMissingCredentials(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Telegram.BotToken = ""
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "telegram.bot_token") {
		t.Fatalf("expected missing bot token error, got %v", err)
	}
}

func TestHistoryListsJobs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No segments processed yet")

	store := testsupport.MustOpenLedger(t, env.cfg)
	finished := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs := []ledger.Job{
		{ID: "j1", RunID: "r", Key: "20240101/record/a.265", Outcome: "corrected", PlanSource: "detected", FPS: "25", Multiplier: 1.2, Delivered: true, StartedAt: finished.Add(-time.Minute), FinishedAt: finished},
		{ID: "j2", RunID: "r", Key: "20240101/record/b.265", Outcome: "encode_failed", Error: "ffmpeg exited 1", StartedAt: finished, FinishedAt: finished.Add(time.Second)},
	}
	for _, job := range jobs {
		if err := store.RecordJob(context.Background(), job); err != nil {
			t.Fatalf("RecordJob: %v", err)
		}
	}
	_ = store.Close()

	out, _, err = runCLI(t, []string{"history", "-n", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "20240101/record/a.265")
	requireContains(t, out, "25 (detected)")
	requireContains(t, out, "1.200")
	requireContains(t, out, "ffmpeg exited 1")
	requireContains(t, out, "All time: corrected=1 encode_failed=1")
}

func TestStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenLedger(t, env.cfg)
	testsupport.MarkDelivered(t, store, "20240101/record/a.265", "20240101/record/b.265")
	_ = store.Close()

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Relay ==")
	requireContains(t, out, "not running")
	requireContains(t, out, "2 segments")
	requireContains(t, out, "skipped (--offline)")
	requireContains(t, out, "Local inbox")
	requireContains(t, out, "auto-detect, fallback 25")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestTranscodeRequiresExistingFile(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.265")
	if _, _, err := runCLI(t, []string{"transcode", missing}, env.configPath); err == nil {
		t.Fatal("expected error for missing input")
	}
	if _, _, err := runCLI(t, []string{"verify", missing, missing}, env.configPath); err == nil {
		t.Fatal("expected error for missing verify inputs")
	}
}

// installFakeTools points the config at shell stand-ins for ffprobe and
// ffmpeg. The ffprobe stand-in reports 750 frames at 25/1 and a 36s duration;
// the ffmpeg stand-in records each call in the returned marker file.
func installFakeTools(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	dir := t.TempDir()
	marker := filepath.Join(dir, "ffmpeg.calls")
	ffprobe := `#!/bin/sh
case "$*" in
*avg_frame_rate*) echo 25/1 ;;
*nb_read_frames*) echo 750 ;;
*format=duration*) echo 36.000000 ;;
esac
`
	ffmpeg := `#!/bin/sh
echo "$*" >> "` + marker + `"
for last; do :; done
echo corrected > "$last"
`
	env.cfg.Transcode.FFprobeBinary = filepath.Join(dir, "ffprobe")
	env.cfg.Transcode.FFmpegBinary = filepath.Join(dir, "ffmpeg")
	for path, body := range map[string]string{env.cfg.Transcode.FFprobeBinary: ffprobe, env.cfg.Transcode.FFmpegBinary: ffmpeg} {
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	writeTestConfig(t, env.configPath, env.cfg)
	return marker
}

func TestVerifyReportsWithoutModifying(t *testing.T) {
	env := setupCLITestEnv(t)
	marker := installFakeTools(t, env)
	dir := t.TempDir()
	source := filepath.Join(dir, "a.265")
	output := filepath.Join(dir, "a.mp4")
	for _, p := range []string{source, output} {
		if err := os.WriteFile(p, []byte("original"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, _, err := runCLI(t, []string{"verify", source, output}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "exceeds_tolerance")
	requireContains(t, out, "--fix")
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("verify without --fix must not run ffmpeg, stat err=%v", err)
	}
	if data, _ := os.ReadFile(output); string(data) != "original" {
		t.Fatalf("output modified without --fix: %q", data)
	}

	out, _, err = runCLI(t, []string{"verify", "--fix", source, output}, env.configPath)
	if err != nil {
		t.Fatalf("verify --fix: %v", err)
	}
	requireContains(t, out, "Outcome:     corrected")
	calls, err := os.ReadFile(marker)
	if err != nil || !strings.Contains(string(calls), "setpts=PTS*") {
		t.Fatalf("expected a correction pass, calls=%q err=%v", calls, err)
	}
	if data, _ := os.ReadFile(output); strings.TrimSpace(string(data)) != "corrected" {
		t.Fatalf("expected corrected output, got %q", data)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	cases := map[string]string{
		"/data/a.265":         "/data/a.mp4",
		"/data/clip.mp4":      "/data/clip.camrelay.mp4",
		"/data/night cam.250": "/data/night cam.mp4",
	}
	for input, want := range cases {
		if got := defaultOutputPath(input); got != want {
			t.Errorf("defaultOutputPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestLogsFiltersBySegment(t *testing.T) {
	env := setupCLITestEnv(t)
	content := "INFO workflow: segment delivered segment=20240101/record/a.265\nINFO workflow: cycle complete\n"
	if err := os.WriteFile(env.cfg.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--segment", "record/a.265"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "segment delivered")
	if strings.Contains(out, "cycle complete") {
		t.Fatalf("unfiltered line in output:\n%s", out)
	}
}
