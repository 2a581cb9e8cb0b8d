package testsupport

import (
	"encoding/binary"
	"math"
	"sort"
)

// JPEG describes a synthetic JPEG with a hand-built EXIF segment.
type JPEG struct {
	// Make is written to IFD0 so tests can check that unrelated tags survive.
	Make               string
	Description        string
	DateTimeOriginal   string
	OffsetTimeOriginal string
	// ExifVersion is four ASCII digits such as "0231".
	ExifVersion string
	// GPS is written when Latitude or Longitude is non-zero.
	Latitude  float64
	Longitude float64
	BigEndian bool
	Thumbnail []byte
	// JFIF adds an APP0 segment before the EXIF segment.
	JFIF bool
	// NoExif omits the APP1 segment entirely.
	NoExif bool
	// ScanData follows the SOS marker. A short default is used when empty.
	ScanData []byte
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Bytes assembles the JPEG stream.
func (j JPEG) Bytes() []byte {
	out := []byte{0xFF, 0xD8}
	if j.JFIF {
		jfif := []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
		out = appendSegment(out, 0xE0, jfif)
	}
	if !j.NoExif {
		out = appendSegment(out, 0xE1, append([]byte("Exif\x00\x00"), j.TIFF()...))
	}
	out = appendSegment(out, 0xDB, make([]byte, 65))
	out = append(out, 0xFF, 0xDA, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3F, 0x00)
	scan := j.ScanData
	if len(scan) == 0 {
		scan = []byte("compressed-scan-data")
	}
	out = append(out, scan...)
	return append(out, 0xFF, 0xD9)
}

// TIFF assembles the TIFF structure carried in the EXIF segment.
func (j JPEG) TIFF() []byte {
	var order binary.ByteOrder = binary.LittleEndian
	if j.BigEndian {
		order = binary.BigEndian
	}
	ascii := func(tag uint16, value string) tiffEntry {
		data := append([]byte(value), 0)
		return tiffEntry{tag: tag, typ: 2, count: uint32(len(data)), data: data}
	}
	long := func(tag uint16, value uint32) tiffEntry {
		data := make([]byte, 4)
		order.PutUint32(data, value)
		return tiffEntry{tag: tag, typ: 4, count: 1, data: data}
	}
	dms := func(tag uint16, value float64) tiffEntry {
		value = math.Abs(value)
		deg := math.Floor(value)
		minutes := math.Floor((value - deg) * 60)
		seconds := ((value-deg)*60 - minutes) * 60
		data := make([]byte, 24)
		for i, v := range [][2]uint32{{uint32(deg), 1}, {uint32(minutes), 1}, {uint32(math.Round(seconds * 100)), 100}} {
			order.PutUint32(data[i*8:], v[0])
			order.PutUint32(data[i*8+4:], v[1])
		}
		return tiffEntry{tag: tag, typ: 5, count: 3, data: data}
	}

	camera := j.Make
	if camera == "" {
		camera = "FixtureCam"
	}
	ifd0 := []tiffEntry{ascii(0x010F, camera)}
	if j.Description != "" {
		ifd0 = append(ifd0, ascii(0x010E, j.Description))
	}

	var exif []tiffEntry
	if j.ExifVersion != "" {
		exif = append(exif, tiffEntry{tag: 0x9000, typ: 7, count: 4, data: []byte(j.ExifVersion)[:4]})
	}
	if j.DateTimeOriginal != "" {
		exif = append(exif, ascii(0x9003, j.DateTimeOriginal))
	}
	if j.OffsetTimeOriginal != "" {
		exif = append(exif, ascii(0x9011, j.OffsetTimeOriginal))
	}

	var gps []tiffEntry
	if j.Latitude != 0 || j.Longitude != 0 {
		latRef, lonRef := "N", "E"
		if j.Latitude < 0 {
			latRef = "S"
		}
		if j.Longitude < 0 {
			lonRef = "W"
		}
		gps = append(gps,
			tiffEntry{tag: 0x0000, typ: 1, count: 4, data: []byte{2, 2, 0, 0}},
			ascii(0x0001, latRef),
			dms(0x0002, j.Latitude),
			ascii(0x0003, lonRef),
			dms(0x0004, j.Longitude),
		)
	}

	var ifd1 []tiffEntry
	if len(j.Thumbnail) > 0 {
		ifd1 = append(ifd1, long(0x0103, 6), long(0x0201, 0), long(0x0202, uint32(len(j.Thumbnail))))
	}
	if len(exif) > 0 {
		ifd0 = append(ifd0, long(0x8769, 0))
	}
	if len(gps) > 0 {
		ifd0 = append(ifd0, long(0x8825, 0))
	}

	offset := 8
	ifd0Off := offset
	offset += ifdSize(ifd0)
	exifOff := offset
	if len(exif) > 0 {
		offset += ifdSize(exif)
	}
	gpsOff := offset
	if len(gps) > 0 {
		offset += ifdSize(gps)
	}
	ifd1Off := offset
	if len(ifd1) > 0 {
		offset += ifdSize(ifd1)
	}
	thumbOff := offset

	setLong(ifd0, order, 0x8769, uint32(exifOff))
	setLong(ifd0, order, 0x8825, uint32(gpsOff))
	setLong(ifd1, order, 0x0201, uint32(thumbOff))

	buf := make([]byte, thumbOff+len(j.Thumbnail))
	if j.BigEndian {
		copy(buf, "MM")
	} else {
		copy(buf, "II")
	}
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], 8)

	next := uint32(0)
	if len(ifd1) > 0 {
		next = uint32(ifd1Off)
	}
	writeIFD(buf, order, ifd0Off, ifd0, next)
	if len(exif) > 0 {
		writeIFD(buf, order, exifOff, exif, 0)
	}
	if len(gps) > 0 {
		writeIFD(buf, order, gpsOff, gps, 0)
	}
	if len(ifd1) > 0 {
		writeIFD(buf, order, ifd1Off, ifd1, 0)
	}
	copy(buf[thumbOff:], j.Thumbnail)
	return buf
}

func appendSegment(out []byte, marker byte, payload []byte) []byte {
	length := len(payload) + 2
	out = append(out, 0xFF, marker, byte(length>>8), byte(length))
	return append(out, payload...)
}

func ifdSize(entries []tiffEntry) int {
	size := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			size += len(e.data) + len(e.data)%2
		}
	}
	return size
}

func setLong(entries []tiffEntry, order binary.ByteOrder, tag uint16, value uint32) {
	for i := range entries {
		if entries[i].tag == tag {
			order.PutUint32(entries[i].data, value)
		}
	}
}

func writeIFD(buf []byte, order binary.ByteOrder, offset int, entries []tiffEntry, next uint32) {
	sorted := append([]tiffEntry(nil), entries...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].tag < sorted[b].tag })
	order.PutUint16(buf[offset:], uint16(len(sorted)))
	pos := offset + 2
	data := pos + 12*len(sorted) + 4
	for _, e := range sorted {
		order.PutUint16(buf[pos:], e.tag)
		order.PutUint16(buf[pos+2:], e.typ)
		order.PutUint32(buf[pos+4:], e.count)
		if len(e.data) <= 4 {
			copy(buf[pos+8:pos+12], e.data)
		} else {
			order.PutUint32(buf[pos+8:], uint32(data))
			copy(buf[data:], e.data)
			data += len(e.data) + len(e.data)%2
		}
		pos += 12
	}
	order.PutUint32(buf[pos:], next)
}
