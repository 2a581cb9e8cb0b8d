// Package main hosts the immich-takeout CLI entrypoint and command graph.
//
// The root command takes one or more Google Takeout archives and imports them
// into an Immich server. Flags override the TOML configuration, which in turn
// falls back to the environment. The ping and config subcommands help check a
// setup before a long import.
//
// Keep this package lean: the pipeline lives in internal/importer and the
// server client in internal/immich. Commands here only resolve configuration,
// build those components, and render results.
package main
