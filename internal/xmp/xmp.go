// Package xmp renders minimal XMP sidecar packets carrying capture time,
// position and description for media whose container cannot be patched.
package xmp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"immich-takeout/internal/media"
)

// Properties are the values written into the packet. Zero values are omitted.
type Properties struct {
	Taken       time.Time
	Location    *media.Coordinates
	Description string
}

const isoLayout = "2006-01-02T15:04:05-07:00"

// Packet returns a complete xpacket-wrapped XMP document.
func Packet(p Properties) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<?xpacket begin=\"\ufeff\" id=\"%s\"?>\n", uuid.NewString())
	buf.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	buf.WriteString(`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	buf.WriteString(`<rdf:Description rdf:about=""` +
		` xmlns:exif="http://ns.adobe.com/exif/1.0/"` +
		` xmlns:xmp="http://ns.adobe.com/xap/1.0/"` +
		` xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/">` + "\n")

	if !p.Taken.IsZero() {
		stamp := p.Taken.Format(isoLayout)
		writeElement(&buf, "exif:DateTimeOriginal", stamp)
		writeElement(&buf, "photoshop:DateCreated", stamp)
		writeElement(&buf, "xmp:CreateDate", stamp)
	}
	if loc := p.Location; loc != nil && !loc.IsZero() && loc.Valid() {
		writeElement(&buf, "exif:GPSLatitude", coordinate(loc.Latitude, 'N', 'S'))
		writeElement(&buf, "exif:GPSLongitude", coordinate(loc.Longitude, 'E', 'W'))
		if loc.Altitude != 0 {
			ref := "0"
			if loc.Altitude < 0 {
				ref = "1"
			}
			writeElement(&buf, "exif:GPSAltitudeRef", ref)
			writeElement(&buf, "exif:GPSAltitude", strconv.FormatInt(int64(math.Round(math.Abs(loc.Altitude)*100)), 10)+"/100")
		}
	}
	if p.Description != "" {
		buf.WriteString("<dc:description><rdf:Alt><rdf:li xml:lang=\"x-default\">")
		xml.EscapeText(&buf, []byte(p.Description))
		buf.WriteString("</rdf:li></rdf:Alt></dc:description>\n")
	}

	buf.WriteString("</rdf:Description>\n</rdf:RDF>\n</x:xmpmeta>\n")
	buf.WriteString(`<?xpacket end="w"?>`)
	return buf.Bytes()
}

func writeElement(buf *bytes.Buffer, name, value string) {
	buf.WriteString("<" + name + ">")
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">\n")
}

// coordinate renders the XMP GPSCoordinate form "DDD,MM.mmmmmmK".
func coordinate(value float64, positive, negative byte) string {
	ref := positive
	if value < 0 {
		ref = negative
	}
	value = math.Abs(value)
	deg := math.Floor(value)
	minutes := (value - deg) * 60
	return fmt.Sprintf("%d,%09.6f%c", int(deg), minutes, ref)
}
