package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateImmich(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateImmich() error {
	if c.Immich.URL != "" {
		parsed, err := url.Parse(c.Immich.URL)
		if err != nil {
			return fmt.Errorf("immich.url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("immich.url must use http or https, got %q", c.Immich.URL)
		}
		if parsed.Host == "" {
			return fmt.Errorf("immich.url must include a host, got %q", c.Immich.URL)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"immich.timeout_seconds": c.Immich.TimeoutSeconds,
		"immich.retry_attempts":  c.Immich.RetryAttempts,
	}); err != nil {
		return err
	}
	if c.Immich.RetryBaseDelaySeconds < 0 {
		return errors.New("immich.retry_base_delay_seconds must be >= 0")
	}
	if c.Immich.RetryMaxDelaySeconds < c.Immich.RetryBaseDelaySeconds {
		return errors.New("immich.retry_max_delay_seconds must be >= immich.retry_base_delay_seconds")
	}
	return nil
}

func (c *Config) validateImport() error {
	if c.Import.SpoolMemoryMiB <= 0 {
		return errors.New("import.spool_memory_mib must be positive")
	}
	return nil
}

func (c *Config) validateState() error {
	if c.State.Enabled && c.State.Path == "" {
		return errors.New("state.path must be set when state.enabled is true")
	}
	return nil
}

func (c *Config) validateReport() error {
	switch c.Report.Format {
	case "csv", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("report.format must be csv, json or yaml, got %q", c.Report.Format)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
