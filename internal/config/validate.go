package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is structurally usable. Credentials for
// the source and Telegram are checked separately by ValidateRelay so local
// commands such as transcode and probe work without them.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.empty_retry_interval": c.Workflow.EmptyRetryInterval,
		"telegram.request_timeout":      c.Telegram.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"ftp.timeout":                   c.FTP.Timeout,
	}); err != nil {
		return err
	}
	if c.FTP.Port < 1 || c.FTP.Port > 65535 {
		return fmt.Errorf("ftp.port %d is out of range", c.FTP.Port)
	}
	if bind := strings.TrimSpace(c.Metrics.Bind); bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			return fmt.Errorf("metrics.bind %q: %w", bind, err)
		}
	}
	return nil
}

// ValidateRelay checks the settings the poll loop needs on top of Validate:
// a reachable source and Telegram credentials.
func (c *Config) ValidateRelay() error {
	switch c.Source.Kind {
	case SourceFTP:
		if c.FTP.Host == "" {
			return c.missing("ftp.host", "FTP_HOST")
		}
		if c.FTP.User == "" {
			return c.missing("ftp.user", "FTP_USER")
		}
	case SourceLocal:
		if c.Source.LocalDir == "" {
			return errors.New("source.local_dir must be set when source.kind is \"local\"")
		}
	}
	if c.Telegram.BotToken == "" {
		return c.missing("telegram.bot_token", "BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		return c.missing("telegram.chat_id", "CHAT_ID")
	}
	return nil
}

func (c *Config) missing(key, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/camrelay/config.toml"
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'camrelay config init')", key, env, defaultPath)
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case SourceFTP, SourceLocal:
		return nil
	default:
		return fmt.Errorf("source.kind %q is not supported (use %q or %q)", c.Source.Kind, SourceFTP, SourceLocal)
	}
}

func (c *Config) validateTranscode() error {
	t := c.Transcode
	if t.Tolerance <= 0 || t.Tolerance >= 1 {
		return errors.New("transcode.tolerance must be between 0 and 1")
	}
	if t.CRF < 0 || t.CRF > 51 {
		return errors.New("transcode.crf must be between 0 and 51")
	}
	if t.FallbackFPS <= 0 {
		return errors.New("transcode.fallback_fps must be positive")
	}
	if t.ToolTimeout <= 0 {
		return errors.New("transcode.tool_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
