// Package exif reads and rewrites the EXIF APP1 segment of JPEG files.
//
// The TIFF structure is decoded with goexif's tiff package and held as raw
// fields, so tags this package does not understand survive a rewrite. Only
// capture time, GPS position and description are interpreted.
package exif
