// Package logging assembles the structured zap loggers used across
// immich-takeout.
//
// It owns the configurable console/JSON encoders, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with the run identifier, archive, and entry path. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
