// Package media holds the small vocabulary shared by the archive, EXIF, and
// upload layers: file kinds derived from extensions and GPS coordinates.
package media
