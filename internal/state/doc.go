// Package state persists which archive entries were already uploaded so an
// interrupted import can resume.
//
// The database is SQLite, guarded by an advisory lock file next to it. Entries
// are keyed by "<archive name>/<entry path>" and carry a BLAKE3 digest of the
// uploaded bytes so identical copies found elsewhere in the export are skipped.
package state
