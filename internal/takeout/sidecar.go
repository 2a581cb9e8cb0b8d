package takeout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"immich-takeout/internal/media"
)

const maxSidecarBytes = 4 << 20

// Sidecar is the Google Photos JSON written next to every exported item.
type Sidecar struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	PhotoTakenTime timestamp   `json:"photoTakenTime"`
	CreationTime   timestamp   `json:"creationTime"`
	GeoData        geoData     `json:"geoData"`
	GeoDataExif    geoData     `json:"geoDataExif"`
	Favorited      bool        `json:"favorited"`
	Origin         photoOrigin `json:"googlePhotosOrigin"`
}

type timestamp struct {
	Timestamp unixSeconds `json:"timestamp"`
	Formatted string      `json:"formatted"`
}

type geoData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type photoOrigin struct {
	FromPartnerSharing json.RawMessage `json:"fromPartnerSharing"`
}

// unixSeconds accepts both the quoted form Takeout writes and bare numbers.
type unixSeconds struct {
	value int64
	set   bool
}

func (u *unixSeconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	u.value = v
	u.set = true
	return nil
}

// ParseSidecar decodes a sidecar JSON document.
func ParseSidecar(r io.Reader) (*Sidecar, error) {
	var s Sidecar
	dec := json.NewDecoder(io.LimitReader(r, maxSidecarBytes))
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	return &s, nil
}

// TakenAt returns the capture instant in UTC.
func (s *Sidecar) TakenAt() (time.Time, bool) {
	if s == nil || !s.PhotoTakenTime.Timestamp.set {
		return time.Time{}, false
	}
	return time.Unix(s.PhotoTakenTime.Timestamp.value, 0).UTC(), true
}

// Location returns geoData, falling back to geoDataExif. Google writes zeros
// when no position is known.
func (s *Sidecar) Location() (media.Coordinates, bool) {
	if s == nil {
		return media.Coordinates{}, false
	}
	for _, g := range []geoData{s.GeoData, s.GeoDataExif} {
		c := media.Coordinates{Latitude: g.Latitude, Longitude: g.Longitude, Altitude: g.Altitude}
		if !c.IsZero() && c.Valid() {
			return c, true
		}
	}
	return media.Coordinates{}, false
}

// PartnerShared reports items that arrived through Google Photos partner sharing.
func (s *Sidecar) PartnerShared() bool {
	if s == nil {
		return false
	}
	raw := bytes.TrimSpace(s.Origin.FromPartnerSharing)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
