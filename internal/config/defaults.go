package config

const (
	defaultWorkDir            = "~/.cache/camrelay/work"
	defaultStateDir           = "~/.local/share/camrelay"
	defaultLogDir             = "~/.local/share/camrelay/logs"
	defaultLogRetentionDays   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultSourceKind         = SourceFTP
	defaultFTPPort            = 21
	defaultFTPRecordSubdir    = "record"
	defaultFTPTimeout         = 30
	defaultTelegramBaseURL    = "https://api.telegram.org"
	defaultTelegramTimeout    = 300
	defaultTelegramRate       = 20
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultFallbackFPS        = 25
	defaultTolerance          = 0.05
	defaultToolTimeout        = 1800
	defaultCRF                = 23
	defaultPreset             = "fast"
	defaultAudioBitrate       = "128k"
	defaultPollInterval       = 60
	defaultErrorRetryInterval = 10
	defaultEmptyRetryInterval = 10
	defaultNotifyTimeout      = 10
)

// Source kinds.
const (
	SourceFTP   = "ftp"
	SourceLocal = "local"
)

func defaultExtensions() []string { return []string{".250", ".265"} }

func defaultRawExtensions() []string { return []string{".265", ".h265", ".hevc"} }

// Default returns a Config populated with camrelay defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Source: Source{
			Kind: defaultSourceKind,
		},
		FTP: FTP{
			RecordSubdir: defaultFTPRecordSubdir,
			Extensions:   defaultExtensions(),
			Timeout:      defaultFTPTimeout,
		},
		Telegram: Telegram{
			APIBaseURL:     defaultTelegramBaseURL,
			RequestTimeout: defaultTelegramTimeout,
			RatePerMinute:  defaultTelegramRate,
		},
		Transcode: Transcode{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			FallbackFPS:   defaultFallbackFPS,
			Tolerance:     defaultTolerance,
			ToolTimeout:   defaultToolTimeout,
			CRF:           defaultCRF,
			Preset:        defaultPreset,
			AudioBitrate:  defaultAudioBitrate,
			RawExtensions: defaultRawExtensions(),
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			EmptyRetryInterval: defaultEmptyRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Corrections:    false,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
