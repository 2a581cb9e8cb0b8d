package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// HOME is re-read on every expansion.
func init() {
	homedir.DisableCache = true
}

// Immich contains the remote server connection settings.
type Immich struct {
	URL                   string `toml:"url"`
	APIKey                string `toml:"api_key"`
	DeviceID              string `toml:"device_id"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	RetryAttempts         int    `toml:"retry_attempts"`
	RetryBaseDelaySeconds int    `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int    `toml:"retry_max_delay_seconds"`
}

// Import controls how archive entries are matched, patched, and uploaded.
type Import struct {
	IncludeUnmatched     bool     `toml:"include_unmatched"`
	IncludePartnerShared bool     `toml:"include_partner_shared"`
	SkipExtensions       []string `toml:"skip_extensions"`
	RewriteEXIF          bool     `toml:"rewrite_exif"`
	XMPSidecars          bool     `toml:"xmp_sidecars"`
	UpdateMetadata       bool     `toml:"update_metadata"`
	FailFast             bool     `toml:"fail_fast"`
	SpoolDir             string   `toml:"spool_dir"`
	SpoolMemoryMiB       int      `toml:"spool_memory_mib"`
}

// State contains the optional resume database settings.
type State struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Report controls the per-file run report.
type Report struct {
	Path   string `toml:"path"`
	Format string `toml:"format"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format   string `toml:"format"`
	Level    string `toml:"level"`
	File     string `toml:"file"`
	Progress bool   `toml:"progress"`
}

// Config encapsulates all configuration values for immich-takeout.
//
// Configuration sections:
//   - Immich: server URL, API key, device id, timeouts and retries
//   - Import: matching and patching behaviour
//   - State: resume database (disabled by default)
//   - Report: per-file report destination and format
//   - Logging: log format, level, optional log file and progress bars
type Config struct {
	Immich  Immich  `toml:"immich"`
	Import  Import  `toml:"import"`
	State   State   `toml:"state"`
	Report  Report  `toml:"report"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Values missing from
// the file fall back to the environment (including a .env file in the working
// directory) and then to defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the enabled features write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Import.SpoolDir}
	if c.State.Enabled {
		dirs = append(dirs, filepath.Dir(c.State.Path))
	}
	if c.Report.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Report.Path))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequireRemote reports whether the Immich connection settings needed for
// uploads are present.
func (c *Config) RequireRemote() error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	if c.Immich.URL == "" {
		return fmt.Errorf("immich.url is required. Pass --api-url, set IMMICH_API_URL or edit %s", defaultPath)
	}
	if c.Immich.APIKey == "" {
		return fmt.Errorf("immich.api_key is required. Pass --api-key, set IMMICH_API_KEY or edit %s", defaultPath)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	expanded, err := homedir.Expand(pathValue)
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	cleaned := filepath.Clean(expanded)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
