package media

import (
	"math"
	"path"
	"strings"
)

// Kind classifies an archive entry by what Immich can ingest.
type Kind string

const (
	KindImage Kind = "IMAGE"
	KindVideo Kind = "VIDEO"
	KindOther Kind = "OTHER"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".jpe": {}, ".png": {}, ".gif": {}, ".webp": {},
	".heic": {}, ".heif": {}, ".avif": {}, ".jxl": {}, ".bmp": {},
	".tif": {}, ".tiff": {}, ".dng": {}, ".cr2": {}, ".cr3": {}, ".nef": {},
	".arw": {}, ".orf": {}, ".raf": {}, ".rw2": {}, ".srw": {}, ".pef": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".m4v": {}, ".mov": {}, ".3gp": {}, ".3g2": {}, ".avi": {},
	".mkv": {}, ".webm": {}, ".mts": {}, ".m2ts": {}, ".mpg": {}, ".mpeg": {},
	".wmv": {}, ".flv": {}, ".vob": {},
}

// Ext returns the lower-cased extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// KindOf reports the media kind for a file name.
func KindOf(name string) Kind {
	ext := Ext(name)
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindOther
}

// IsJPEG reports whether the name carries a JPEG extension.
func IsJPEG(name string) bool {
	switch Ext(name) {
	case ".jpg", ".jpeg", ".jpe":
		return true
	default:
		return false
	}
}

// Coordinates is a WGS84 position. Altitude is metres above sea level.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// IsZero reports whether the position is the 0,0 placeholder Google uses for
// "no location".
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Valid reports whether the position lies within WGS84 bounds.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
