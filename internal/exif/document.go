package exif

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/tiff"

	"immich-takeout/internal/media"
)

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

type directory struct {
	fields []field
}

func (d *directory) find(tag uint16) *field {
	if d == nil {
		return nil
	}
	for i := range d.fields {
		if d.fields[i].tag == tag {
			return &d.fields[i]
		}
	}
	return nil
}

func (d *directory) set(f field) {
	if existing := d.find(f.tag); existing != nil {
		*existing = f
		return
	}
	d.fields = append(d.fields, f)
}

func (d *directory) remove(tag uint16) {
	out := d.fields[:0]
	for _, f := range d.fields {
		if f.tag != tag {
			out = append(out, f)
		}
	}
	d.fields = out
}

func (d *directory) empty() bool {
	return d == nil || len(d.fields) == 0
}

func (d *directory) clone() *directory {
	if d == nil {
		return &directory{}
	}
	out := &directory{fields: make([]field, len(d.fields))}
	copy(out.fields, d.fields)
	return out
}

// Document is the decoded TIFF structure of an EXIF APP1 segment. Sub-IFD
// pointers are resolved on decode and rebuilt on encode.
type Document struct {
	order     binary.ByteOrder
	ifd0      *directory
	exif      *directory
	interop   *directory
	gps       *directory
	ifd1      *directory
	thumbnail []byte
	dirty     bool
}

func newDocument() *Document {
	return &Document{
		order:   binary.LittleEndian,
		ifd0:    &directory{},
		exif:    &directory{},
		interop: &directory{},
		gps:     &directory{},
	}
}

func decodeDocument(raw []byte) (*Document, error) {
	t, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExif, err)
	}
	if len(t.Dirs) == 0 {
		return nil, fmt.Errorf("%w: no IFD0", ErrInvalidExif)
	}
	doc := &Document{order: t.Order, ifd0: fromDir(t.Dirs[0])}
	doc.ifd0.remove(tagSubIFDs)

	if doc.exif, err = doc.subDirectory(raw, doc.ifd0, tagExifIFD); err != nil {
		return nil, err
	}
	if doc.interop, err = doc.subDirectory(raw, doc.exif, tagInteropIFD); err != nil {
		return nil, err
	}
	if doc.gps, err = doc.subDirectory(raw, doc.ifd0, tagGPSIFD); err != nil {
		return nil, err
	}

	if len(t.Dirs) > 1 {
		ifd1 := fromDir(t.Dirs[1])
		offset, okOffset := ifd1.uint(doc.order, tagThumbnailOffset)
		length, okLength := ifd1.uint(doc.order, tagThumbnailLength)
		ifd1.remove(tagThumbnailOffset)
		ifd1.remove(tagThumbnailLength)
		switch {
		case ifd1.find(tagStripOffsets) != nil:
			// Uncompressed strip thumbnails cannot be relocated.
		case okOffset && okLength && offset+length <= uint64(len(raw)):
			doc.thumbnail = append([]byte(nil), raw[offset:offset+length]...)
			doc.ifd1 = ifd1
		case !ifd1.empty():
			doc.ifd1 = ifd1
		}
	}
	return doc, nil
}

func fromDir(d *tiff.Dir) *directory {
	out := &directory{fields: make([]field, 0, len(d.Tags))}
	for _, tag := range d.Tags {
		out.fields = append(out.fields, field{
			tag:   tag.Id,
			typ:   uint16(tag.Type),
			count: tag.Count,
			value: append([]byte(nil), tag.Val...),
		})
	}
	return out
}

func (doc *Document) subDirectory(raw []byte, parent *directory, pointer uint16) (*directory, error) {
	offset, ok := parent.uint(doc.order, pointer)
	parent.remove(pointer)
	if !ok {
		return &directory{}, nil
	}
	if offset < 8 || offset >= uint64(len(raw)) {
		return nil, fmt.Errorf("%w: sub-IFD 0x%04x offset %d out of range", ErrInvalidExif, pointer, offset)
	}
	r := bytes.NewReader(raw)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExif, err)
	}
	dir, _, err := tiff.DecodeDir(r, doc.order)
	if err != nil {
		return nil, fmt.Errorf("%w: sub-IFD 0x%04x: %v", ErrInvalidExif, pointer, err)
	}
	return fromDir(dir), nil
}

func (d *directory) uint(order binary.ByteOrder, tag uint16) (uint64, bool) {
	f := d.find(tag)
	if f == nil || f.count < 1 {
		return 0, false
	}
	switch f.typ {
	case typeShort:
		if len(f.value) < 2 {
			return 0, false
		}
		return uint64(order.Uint16(f.value)), true
	case typeLong, typeUndefined:
		if len(f.value) < 4 {
			return 0, false
		}
		return uint64(order.Uint32(f.value)), true
	default:
		return 0, false
	}
}

func (d *directory) ascii(tag uint16) (string, bool) {
	f := d.find(tag)
	if f == nil || f.typ != typeASCII {
		return "", false
	}
	value := f.value
	if i := bytes.IndexByte(value, 0); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(string(value)), true
}

func (d *directory) rationals(order binary.ByteOrder, tag uint16) ([]float64, bool) {
	f := d.find(tag)
	if f == nil || f.typ != typeRational || len(f.value) < int(f.count)*8 {
		return nil, false
	}
	out := make([]float64, f.count)
	for i := range out {
		num := order.Uint32(f.value[i*8:])
		den := order.Uint32(f.value[i*8+4:])
		if den == 0 {
			return nil, false
		}
		out[i] = float64(num) / float64(den)
	}
	return out, true
}

// CaptureTime returns DateTimeOriginal. zoned reports whether
// OffsetTimeOriginal was present; naive values carry the UTC location.
func (doc *Document) CaptureTime() (t time.Time, zoned bool, ok bool) {
	value, found := doc.exif.ascii(tagDateTimeOriginal)
	if !found {
		return time.Time{}, false, false
	}
	parsed, err := time.ParseInLocation(dateTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, false, false
	}
	offset, found := doc.exif.ascii(tagOffsetTimeOriginal)
	if !found {
		return parsed, false, true
	}
	loc, err := parseOffset(offset)
	if err != nil {
		return parsed, false, true
	}
	y, mo, d := parsed.Date()
	h, mi, s := parsed.Clock()
	return time.Date(y, mo, d, h, mi, s, 0, loc), true, true
}

// GPS returns the embedded position.
func (doc *Document) GPS() (media.Coordinates, bool) {
	lat, okLat := doc.gps.rationals(doc.order, tagGPSLatitude)
	lon, okLon := doc.gps.rationals(doc.order, tagGPSLongitude)
	if !okLat || !okLon || len(lat) < 3 || len(lon) < 3 {
		return media.Coordinates{}, false
	}
	c := media.Coordinates{
		Latitude:  lat[0] + lat[1]/60 + lat[2]/3600,
		Longitude: lon[0] + lon[1]/60 + lon[2]/3600,
	}
	if ref, _ := doc.gps.ascii(tagGPSLatitudeRef); ref == "S" {
		c.Latitude = -c.Latitude
	}
	if ref, _ := doc.gps.ascii(tagGPSLongitudeRef); ref == "W" {
		c.Longitude = -c.Longitude
	}
	if alt, ok := doc.gps.rationals(doc.order, tagGPSAltitude); ok && len(alt) > 0 {
		c.Altitude = alt[0]
		if f := doc.gps.find(tagGPSAltitudeRef); f != nil && len(f.value) > 0 && f.value[0] == 1 {
			c.Altitude = -c.Altitude
		}
	}
	if c.IsZero() || !c.Valid() {
		return media.Coordinates{}, false
	}
	return c, true
}

// Description returns ImageDescription.
func (doc *Document) Description() string {
	value, _ := doc.ifd0.ascii(tagImageDescription)
	return value
}

// SetCaptureTime writes DateTime, DateTimeOriginal and their offsets using
// the wall clock and zone of t.
func (doc *Document) SetCaptureTime(t time.Time) {
	wall := t.Format(dateTimeLayout)
	offset := t.Format("-07:00")
	doc.ensureExifVersion()
	doc.ifd0.set(asciiField(tagDateTime, wall))
	doc.exif.set(asciiField(tagDateTimeOriginal, wall))
	doc.exif.set(asciiField(tagOffsetTimeOriginal, offset))
	doc.exif.set(asciiField(tagOffsetTime, offset))
	doc.dirty = true
}

// SetGPS replaces the position tags.
func (doc *Document) SetGPS(c media.Coordinates) {
	latRef, lonRef := "N", "E"
	if c.Latitude < 0 {
		latRef = "S"
	}
	if c.Longitude < 0 {
		lonRef = "W"
	}
	doc.gps.set(field{tag: tagGPSVersionID, typ: typeByte, count: 4, value: []byte{2, 3, 0, 0}})
	doc.gps.set(asciiField(tagGPSLatitudeRef, latRef))
	doc.gps.set(doc.rationalField(tagGPSLatitude, degreesToDMS(math.Abs(c.Latitude))))
	doc.gps.set(asciiField(tagGPSLongitudeRef, lonRef))
	doc.gps.set(doc.rationalField(tagGPSLongitude, degreesToDMS(math.Abs(c.Longitude))))
	if c.Altitude != 0 {
		ref := byte(0)
		if c.Altitude < 0 {
			ref = 1
		}
		doc.gps.set(field{tag: tagGPSAltitudeRef, typ: typeByte, count: 1, value: []byte{ref}})
		doc.gps.set(doc.rationalField(tagGPSAltitude, [][2]uint32{{uint32(math.Round(math.Abs(c.Altitude) * 100)), 100}}))
	} else {
		doc.gps.remove(tagGPSAltitudeRef)
		doc.gps.remove(tagGPSAltitude)
	}
	doc.dirty = true
}

// SetDescription writes ImageDescription.
func (doc *Document) SetDescription(text string) {
	doc.ifd0.set(asciiField(tagImageDescription, text))
	doc.dirty = true
}

// Dirty reports whether any setter ran.
func (doc *Document) Dirty() bool {
	return doc.dirty
}

func (doc *Document) ensureExifVersion() {
	if doc.exif.find(tagExifVersion) == nil {
		doc.exif.set(field{tag: tagExifVersion, typ: typeUndefined, count: 4, value: []byte("0232")})
	}
}

func (doc *Document) rationalField(tag uint16, values [][2]uint32) field {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		doc.order.PutUint32(buf[i*8:], v[0])
		doc.order.PutUint32(buf[i*8+4:], v[1])
	}
	return field{tag: tag, typ: typeRational, count: uint32(len(values)), value: buf}
}

func asciiField(tag uint16, value string) field {
	data := append([]byte(value), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(data)), value: data}
}

func degreesToDMS(value float64) [][2]uint32 {
	deg := math.Floor(value)
	minutesFull := (value - deg) * 60
	minutes := math.Floor(minutesFull)
	seconds := (minutesFull - minutes) * 60
	return [][2]uint32{
		{uint32(deg), 1},
		{uint32(minutes), 1},
		{uint32(math.Round(seconds * 10000)), 10000},
	}
}

// parseOffset reads an EXIF "+HH:MM" offset.
func parseOffset(value string) (*time.Location, error) {
	value = strings.TrimSpace(value)
	if value == "Z" {
		return time.UTC, nil
	}
	if len(value) != 6 || (value[0] != '+' && value[0] != '-') || value[3] != ':' {
		return nil, fmt.Errorf("offset %q: want ±HH:MM", value)
	}
	hours, err := strconv.Atoi(value[1:3])
	if err != nil {
		return nil, fmt.Errorf("offset %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(value[4:6])
	if err != nil {
		return nil, fmt.Errorf("offset %q: %w", value, err)
	}
	seconds := hours*3600 + minutes*60
	if value[0] == '-' {
		seconds = -seconds
	}
	return time.FixedZone(value, seconds), nil
}
