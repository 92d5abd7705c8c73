package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"camrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// FTP and Telegram credentials are filled with placeholders so ValidateRelay
// passes; nothing in the returned config dials out.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.FTP.Host = "camera.test"
	cfgVal.FTP.Port = 21
	cfgVal.FTP.User = "camera"
	cfgVal.Telegram.BotToken = "123:test"
	cfgVal.Telegram.ChatID = "-1001"
	cfgVal.Telegram.RatePerMinute = 0
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLocalSource switches the source to a local inbox under the temp dir.
func WithLocalSource() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Kind = config.SourceLocal
		b.cfg.Source.LocalDir = filepath.Join(b.baseDir, "inbox")
		if err := os.MkdirAll(b.cfg.Source.LocalDir, 0o755); err != nil {
			b.t.Fatalf("mkdir inbox: %v", err)
		}
	}
}

// WithTargetFPS forces the output frame rate.
func WithTargetFPS(fps int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcode.TargetFPS = fps
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
