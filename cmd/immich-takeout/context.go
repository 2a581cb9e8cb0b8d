package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"immich-takeout/internal/config"
)

// rootFlags holds command line overrides. Empty strings and false booleans
// leave the configured value alone.
type rootFlags struct {
	configPath string
	apiKey     string
	apiURL     string
	deviceID   string
	logLevel   string
	logFormat  string

	dryRun               bool
	reportPath           string
	reportFormat         string
	resume               bool
	statePath            string
	includeUnmatched     bool
	includePartnerShared bool
	failFast             bool
	noProgress           bool
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.flags.apply(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (f *rootFlags) apply(cfg *config.Config) error {
	if v := strings.TrimSpace(f.apiURL); v != "" {
		cfg.Immich.URL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(f.apiKey); v != "" {
		cfg.Immich.APIKey = v
	}
	if v := strings.TrimSpace(f.deviceID); v != "" {
		cfg.Immich.DeviceID = v
	}
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(f.logFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(f.reportFormat); v != "" {
		cfg.Report.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(f.reportPath); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return err
		}
		cfg.Report.Path = expanded
	}
	if v := strings.TrimSpace(f.statePath); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return err
		}
		cfg.State.Path = expanded
		cfg.State.Enabled = true
	}
	if f.resume {
		cfg.State.Enabled = true
	}
	if f.includeUnmatched {
		cfg.Import.IncludeUnmatched = true
	}
	if f.includePartnerShared {
		cfg.Import.IncludePartnerShared = true
	}
	if f.failFast {
		cfg.Import.FailFast = true
	}
	if f.noProgress {
		cfg.Logging.Progress = false
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
