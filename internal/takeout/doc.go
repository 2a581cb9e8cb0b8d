// Package takeout reads Google Takeout export archives.
//
// Archives are streamed sequentially, never extracted. BuildIndex makes a
// first pass over every archive collecting the JSON sidecars Google writes
// next to each photo or video; the second pass walks the media entries and
// asks the Index for the sidecar that belongs to each one. Sidecars and media
// are frequently split across archives, and their names are mangled by the
// exporter: duplicate counters move behind the extension, long names are cut
// at 90 characters, and newer exports add a ".supplemental-metadata" segment.
// The helpers in names.go undo those manglings.
package takeout
