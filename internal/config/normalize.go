package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSource(); err != nil {
		return err
	}
	c.normalizeFTP()
	c.normalizeTelegram()
	c.normalizeTranscode()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() error {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = defaultSourceKind
	}
	if strings.TrimSpace(c.Source.LocalDir) != "" {
		var err error
		if c.Source.LocalDir, err = expandPath(c.Source.LocalDir); err != nil {
			return fmt.Errorf("source.local_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeFTP() {
	c.FTP.Host = strings.TrimSpace(c.FTP.Host)
	if c.FTP.Host == "" {
		if value, ok := os.LookupEnv("FTP_HOST"); ok {
			c.FTP.Host = strings.TrimSpace(value)
		}
	}
	if c.FTP.Port == 0 {
		if value, ok := os.LookupEnv("FTP_PORT"); ok && strings.TrimSpace(value) != "" {
			port, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				c.warnf("FTP_PORT %q is not a number; using port %d", value, defaultFTPPort)
			} else {
				c.FTP.Port = port
			}
		}
	}
	if c.FTP.Port == 0 {
		c.FTP.Port = defaultFTPPort
	}
	if c.FTP.User == "" {
		if value, ok := os.LookupEnv("FTP_USER"); ok {
			c.FTP.User = value
		}
	}
	if c.FTP.Password == "" {
		if value, ok := os.LookupEnv("FTP_PASS"); ok {
			c.FTP.Password = value
		}
	}
	if !c.FTP.DeleteAfterSuccess {
		if value, ok := os.LookupEnv("DELETE_AFTER_SUCCESS"); ok {
			c.FTP.DeleteAfterSuccess = parseTruthy(value)
		}
	}
	c.FTP.RootDir = strings.TrimSpace(c.FTP.RootDir)
	if c.FTP.RootDir == "" {
		c.FTP.RootDir = "/"
	}
	c.FTP.RecordSubdir = strings.Trim(strings.TrimSpace(c.FTP.RecordSubdir), "/")
	if c.FTP.RecordSubdir == "" {
		c.FTP.RecordSubdir = defaultFTPRecordSubdir
	}
	c.FTP.Extensions = normalizeExtensions(c.FTP.Extensions, defaultExtensions())
	if c.FTP.Timeout <= 0 {
		c.FTP.Timeout = defaultFTPTimeout
	}
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	if c.Telegram.BotToken == "" {
		if value, ok := os.LookupEnv("BOT_TOKEN"); ok {
			c.Telegram.BotToken = strings.TrimSpace(value)
		}
	}
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	if c.Telegram.ChatID == "" {
		if value, ok := os.LookupEnv("CHAT_ID"); ok {
			c.Telegram.ChatID = strings.TrimSpace(value)
		}
	}
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramBaseURL
	}
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = defaultTelegramTimeout
	}
	if c.Telegram.RatePerMinute < 0 {
		c.Telegram.RatePerMinute = 0
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Transcode.TargetFPS == 0 {
		if value, ok := os.LookupEnv("TARGET_FPS"); ok && strings.TrimSpace(value) != "" {
			fps, err := strconv.Atoi(strings.TrimSpace(value))
			switch {
			case err != nil:
				c.warnf("TARGET_FPS %q is not an integer; frame rate will be auto-detected", value)
			case fps <= 0:
				c.warnf("TARGET_FPS %q must be positive; frame rate will be auto-detected", value)
			default:
				c.Transcode.TargetFPS = fps
			}
		}
	}
	if c.Transcode.TargetFPS < 0 {
		c.warnf("transcode.target_fps %d must not be negative; frame rate will be auto-detected", c.Transcode.TargetFPS)
		c.Transcode.TargetFPS = 0
	}
	if c.Transcode.FallbackFPS <= 0 {
		c.Transcode.FallbackFPS = defaultFallbackFPS
	}
	if c.Transcode.Tolerance <= 0 {
		c.Transcode.Tolerance = defaultTolerance
	}
	if c.Transcode.ToolTimeout <= 0 {
		c.Transcode.ToolTimeout = defaultToolTimeout
	}
	c.Transcode.Preset = strings.ToLower(strings.TrimSpace(c.Transcode.Preset))
	if c.Transcode.Preset == "" {
		c.Transcode.Preset = defaultPreset
	}
	c.Transcode.AudioBitrate = strings.TrimSpace(c.Transcode.AudioBitrate)
	if c.Transcode.AudioBitrate == "" {
		c.Transcode.AudioBitrate = defaultAudioBitrate
	}
	c.Transcode.RawExtensions = normalizeExtensions(c.Transcode.RawExtensions, defaultRawExtensions())
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.EmptyRetryInterval <= 0 {
		c.Workflow.EmptyRetryInterval = defaultEmptyRetryInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func parseTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func normalizeExtensions(values []string, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, ext := range values {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
