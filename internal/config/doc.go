// Package config loads, normalizes, and validates immich-takeout configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// IMMICH_API_URL and IMMICH_API_KEY, optionally sourced from a .env file in the
// working directory. Command-line flags are applied on top by the CLI.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
