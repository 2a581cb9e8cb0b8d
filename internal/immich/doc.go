// Package immich is a small client for the Immich asset API: multipart
// uploads, metadata updates and connectivity checks, with retries on
// throttling and server errors.
package immich
