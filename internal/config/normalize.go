package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	vars, err := readEnvironment()
	if err != nil {
		return err
	}
	c.normalizeImmich(vars)
	if err := c.normalizeImport(); err != nil {
		return err
	}
	if err := c.normalizeState(vars); err != nil {
		return err
	}
	if err := c.normalizeReport(); err != nil {
		return err
	}
	return c.normalizeLogging(vars)
}

func (c *Config) normalizeImmich(vars environment) {
	c.Immich.URL = strings.TrimSpace(c.Immich.URL)
	if c.Immich.URL == "" {
		c.Immich.URL = strings.TrimSpace(vars.APIURL)
	}
	c.Immich.URL = strings.TrimRight(c.Immich.URL, "/")
	c.Immich.APIKey = strings.TrimSpace(c.Immich.APIKey)
	if c.Immich.APIKey == "" {
		c.Immich.APIKey = strings.TrimSpace(vars.APIKey)
	}
	c.Immich.DeviceID = strings.TrimSpace(c.Immich.DeviceID)
	if c.Immich.DeviceID == "" {
		c.Immich.DeviceID = strings.TrimSpace(vars.DeviceID)
	}
	if c.Immich.DeviceID == "" {
		c.Immich.DeviceID = defaultDeviceID
	}
}

func (c *Config) normalizeImport() error {
	exts := make([]string, 0, len(c.Import.SkipExtensions))
	seen := make(map[string]struct{}, len(c.Import.SkipExtensions))
	for _, ext := range c.Import.SkipExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Import.SkipExtensions = exts

	var err error
	if c.Import.SpoolDir, err = expandPath(strings.TrimSpace(c.Import.SpoolDir)); err != nil {
		return fmt.Errorf("import.spool_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeState(vars environment) error {
	c.State.Path = strings.TrimSpace(c.State.Path)
	if c.State.Path == "" {
		c.State.Path = strings.TrimSpace(vars.StatePath)
	}
	if c.State.Path == "" {
		c.State.Path = defaultStatePath
	}
	var err error
	if c.State.Path, err = expandPath(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeReport() error {
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	if c.Report.Format == "" {
		c.Report.Format = defaultReportFormat
	}
	var err error
	if c.Report.Path, err = expandPath(strings.TrimSpace(c.Report.Path)); err != nil {
		return fmt.Errorf("report.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging(vars environment) error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if value := strings.ToLower(strings.TrimSpace(vars.LogLevel)); value != "" && (c.Logging.Level == "" || c.Logging.Level == defaultLogLevel) {
		c.Logging.Level = value
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}
