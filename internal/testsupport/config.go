package testsupport

import (
	"path/filepath"
	"testing"

	"immich-takeout/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Immich.URL = "http://127.0.0.1:2283"
	cfgVal.Immich.APIKey = "test"
	cfgVal.Immich.RetryAttempts = 1
	cfgVal.Import.SpoolDir = filepath.Join(base, "spool")
	cfgVal.State.Path = filepath.Join(base, "state", "state.db")
	cfgVal.Logging.Progress = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServer points the test config at an Immich server URL.
func WithServer(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Immich.URL = url
	}
}

// WithState enables the resume database inside the test temp directory.
func WithState() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.State.Enabled = true
	}
}

// WithReport writes the run report into the test temp directory.
func WithReport(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Report.Format = format
		b.cfg.Report.Path = filepath.Join(b.baseDir, "report."+format)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Import.SpoolDir)
}
