package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"camrelay/internal/config"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"FTP_HOST", "FTP_PORT", "FTP_USER", "FTP_PASS", "BOT_TOKEN", "CHAT_ID", "TARGET_FPS", "DELETE_AFTER_SUCCESS", "NTFY_TOPIC"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	clearRelayEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".local", "share", "camrelay"); cfg.Paths.StateDir != want {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, want)
	}
	if cfg.FTP.Port != 21 {
		t.Fatalf("expected default port 21, got %d", cfg.FTP.Port)
	}
	if cfg.Transcode.TargetFPS != 0 {
		t.Fatalf("expected auto frame rate, got %d", cfg.Transcode.TargetFPS)
	}
	if cfg.Transcode.FallbackFPS != 25 || cfg.Transcode.Tolerance != 0.05 {
		t.Fatalf("unexpected timing defaults: %+v", cfg.Transcode)
	}
	if strings.Join(cfg.FTP.Extensions, ",") != ".250,.265" {
		t.Fatalf("unexpected extensions: %v", cfg.FTP.Extensions)
	}
	if cfg.LedgerPath() != filepath.Join(cfg.Paths.StateDir, "camrelay.db") {
		t.Fatalf("unexpected ledger path %q", cfg.LedgerPath())
	}
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("expected relay validation to require ftp.host")
	}
}

func TestLoadUsesEnvironmentFallbacks(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FTP_HOST", "camera.local")
	t.Setenv("FTP_PORT", "2121")
	t.Setenv("FTP_USER", "admin")
	t.Setenv("FTP_PASS", "secret")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHAT_ID", "-100")
	t.Setenv("TARGET_FPS", "15")
	t.Setenv("DELETE_AFTER_SUCCESS", "Yes")
	t.Setenv("NTFY_TOPIC", "https://ntfy.sh/cam")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.FTP.Host != "camera.local" || cfg.FTP.Port != 2121 || cfg.FTP.User != "admin" || cfg.FTP.Password != "secret" {
		t.Fatalf("unexpected ftp config: %+v", cfg.FTP)
	}
	if !cfg.FTP.DeleteAfterSuccess {
		t.Fatal("expected delete_after_success from env")
	}
	if cfg.Transcode.TargetFPS != 15 {
		t.Fatalf("expected target fps 15, got %d", cfg.Transcode.TargetFPS)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/cam" {
		t.Fatalf("unexpected ntfy topic %q", cfg.Notifications.NtfyTopic)
	}
	if err := cfg.ValidateRelay(); err != nil {
		t.Fatalf("ValidateRelay returned error: %v", err)
	}
}

func TestInvalidTargetFPSFallsBackToAutoWithWarning(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not a number", value: "abc"},
		{name: "zero", value: "0"},
		{name: "negative", value: "-5"},
		{name: "fractional", value: "29.97"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearRelayEnv(t)
			t.Setenv("HOME", t.TempDir())
			t.Setenv("TARGET_FPS", tt.value)
			cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if cfg.Transcode.TargetFPS != 0 {
				t.Fatalf("expected auto-detect, got %d", cfg.Transcode.TargetFPS)
			}
			if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "TARGET_FPS") {
				t.Fatalf("expected TARGET_FPS warning, got %v", cfg.Warnings)
			}
		})
	}
}

func TestFileValuesWinOverEnvironment(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FTP_HOST", "from-env")
	t.Setenv("TARGET_FPS", "10")

	path := filepath.Join(t.TempDir(), "camrelay.toml")
	contents := `
[ftp]
host = "from-file"
extensions = ["250", ".H265", ".250"]

[transcode]
target_fps = 20
tolerance = 0.1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be found at %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.FTP.Host != "from-file" {
		t.Fatalf("expected file host, got %q", cfg.FTP.Host)
	}
	if cfg.Transcode.TargetFPS != 20 || cfg.Transcode.Tolerance != 0.1 {
		t.Fatalf("unexpected transcode config: %+v", cfg.Transcode)
	}
	if got := strings.Join(cfg.FTP.Extensions, ","); got != ".250,.h265" {
		t.Fatalf("expected normalized extensions, got %q", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{name: "tolerance too large", mutate: func(c *config.Config) { c.Transcode.Tolerance = 1.5 }, want: "tolerance"},
		{name: "crf out of range", mutate: func(c *config.Config) { c.Transcode.CRF = 60 }, want: "crf"},
		{name: "unknown source", mutate: func(c *config.Config) { c.Source.Kind = "smb" }, want: "source.kind"},
		{name: "bad metrics bind", mutate: func(c *config.Config) { c.Metrics.Bind = "nohostport" }, want: "metrics.bind"},
		{name: "zero poll interval", mutate: func(c *config.Config) { c.Workflow.PollInterval = 0 }, want: "poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.FTP.Port = 21
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateRelayLocalSource(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Kind = config.SourceLocal
	cfg.Telegram.BotToken = "t"
	cfg.Telegram.ChatID = "c"
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("expected local_dir requirement")
	}
	cfg.Source.LocalDir = t.TempDir()
	if err := cfg.ValidateRelay(); err != nil {
		t.Fatalf("ValidateRelay returned error: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
