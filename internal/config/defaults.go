package config

const (
	defaultConfigPath            = "~/.config/immich-takeout/config.toml"
	projectConfigFile            = "immich-takeout.toml"
	dotEnvFile                   = ".env"
	defaultDeviceID              = "gphotos-takeout-import"
	defaultTimeoutSeconds        = 60
	defaultRetryAttempts         = 20
	defaultRetryBaseDelaySeconds = 10
	defaultRetryMaxDelaySeconds  = 120
	defaultSpoolMemoryMiB        = 32
	defaultStatePath             = "~/.local/share/immich-takeout/state.db"
	defaultReportFormat          = "csv"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Immich: Immich{
			DeviceID:              defaultDeviceID,
			TimeoutSeconds:        defaultTimeoutSeconds,
			RetryAttempts:         defaultRetryAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
		},
		Import: Import{
			SkipExtensions: []string{".vob", ".thm"},
			RewriteEXIF:    true,
			XMPSidecars:    true,
			UpdateMetadata: true,
			SpoolMemoryMiB: defaultSpoolMemoryMiB,
		},
		State: State{
			Path: defaultStatePath,
		},
		Report: Report{
			Format: defaultReportFormat,
		},
		Logging: Logging{
			Format:   defaultLogFormat,
			Level:    defaultLogLevel,
			Progress: true,
		},
	}
}
