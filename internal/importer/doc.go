// Package importer runs the two-pass Takeout import.
//
// The first pass indexes every JSON sidecar across all archives. The second
// pass streams the archives again and handles media entries one at a time:
// match the sidecar, patch capture time and position (EXIF for JPEG, an XMP
// sidecar otherwise), upload, and patch the asset metadata when the capture
// time changed. Tar streams cannot seek, so each entry is spooled once to make
// upload retries possible.
package importer
