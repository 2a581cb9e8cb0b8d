// Package capture decides which capture time an uploaded asset should carry
// when the embedded EXIF time and the Takeout sidecar disagree.
package capture

import (
	"math"
	"time"

	"immich-takeout/internal/media"
)

// naiveWindow bounds how far a zone-less EXIF time may sit from the sidecar
// instant and still be read as local wall clock time.
const naiveWindow = 12 * time.Hour

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonMatch    Reason = "match"
	ReasonMissing  Reason = "missing"
	ReasonOffset   Reason = "offset"
	ReasonRezoned  Reason = "rezoned"
	ReasonReplaced Reason = "replaced"
)

// Embedded is the capture time found inside the file.
type Embedded struct {
	Time time.Time
	// Zoned is false for EXIF times without OffsetTimeOriginal; their Time
	// carries the wall clock in UTC.
	Zoned bool
	OK    bool
}

// Decision is the capture time to write and whether it differs from what the
// file already says.
type Decision struct {
	Time    time.Time
	Changed bool
	Reason  Reason
}

// Reconcile compares the embedded time with the sidecar instant taken (UTC).
// loc, when non-nil, provides a fallback zone.
func Reconcile(embedded Embedded, taken time.Time, loc *media.Coordinates) Decision {
	switch {
	case !embedded.OK:
		return Decision{Time: taken.In(ZoneFor(loc)), Changed: true, Reason: ReasonMissing}
	case embedded.Zoned && embedded.Time.Equal(taken):
		return Decision{Time: embedded.Time, Changed: false, Reason: ReasonMatch}
	case embedded.Zoned:
		return Decision{Time: taken.In(embedded.Time.Location()), Changed: true, Reason: ReasonRezoned}
	}

	wall := time.Date(
		embedded.Time.Year(), embedded.Time.Month(), embedded.Time.Day(),
		embedded.Time.Hour(), embedded.Time.Minute(), embedded.Time.Second(), 0, time.UTC,
	)
	diff := taken.Sub(wall)
	if diff.Abs() <= naiveWindow {
		offsetMinutes := -int(math.Floor(diff.Seconds() / 60))
		zone := time.FixedZone("", offsetMinutes*60)
		local := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, zone)
		return Decision{Time: local, Changed: true, Reason: ReasonOffset}
	}
	return Decision{Time: taken.In(ZoneFor(loc)), Changed: true, Reason: ReasonReplaced}
}

// FileTime decides the capture time for media without embedded EXIF, where the
// archive modification time stands in for the file's own timestamp.
func FileTime(modTime, taken time.Time, loc *media.Coordinates) Decision {
	if modTime.Equal(taken) {
		return Decision{Time: taken.In(ZoneFor(loc)), Changed: false, Reason: ReasonMatch}
	}
	return Decision{Time: taken.In(ZoneFor(loc)), Changed: true, Reason: ReasonReplaced}
}

// ZoneFor returns the nautical time zone for a position, or UTC without one.
func ZoneFor(loc *media.Coordinates) *time.Location {
	if loc == nil || loc.IsZero() || !loc.Valid() {
		return time.UTC
	}
	hours := int(math.Round(loc.Longitude / 15))
	if hours == 0 {
		return time.UTC
	}
	return time.FixedZone("", hours*3600)
}
