package exif

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const tiffHeaderSize = 8

// Encode serialises the document as a TIFF stream: IFD0, Exif, Interop, GPS,
// IFD1 and the thumbnail, in that order.
func (doc *Document) Encode() ([]byte, error) {
	ifd0 := doc.ifd0.clone()
	exif := doc.exif.clone()
	interop := doc.interop.clone()
	gps := doc.gps.clone()

	if !interop.empty() {
		exif.set(doc.longField(tagInteropIFD, 0))
	}
	if !exif.empty() {
		ifd0.set(doc.longField(tagExifIFD, 0))
	}
	if !gps.empty() {
		ifd0.set(doc.longField(tagGPSIFD, 0))
	}
	var ifd1 *directory
	if doc.ifd1 != nil || len(doc.thumbnail) > 0 {
		ifd1 = doc.ifd1.clone()
		if len(doc.thumbnail) > 0 {
			ifd1.set(doc.longField(tagThumbnailOffset, 0))
			ifd1.set(doc.longField(tagThumbnailLength, uint32(len(doc.thumbnail))))
		}
	}

	type block struct {
		dir    *directory
		offset int
	}
	blocks := []*block{{dir: ifd0}}
	var exifBlock, interopBlock, gpsBlock, ifd1Block *block
	if !exif.empty() {
		exifBlock = &block{dir: exif}
		blocks = append(blocks, exifBlock)
	}
	if !interop.empty() {
		interopBlock = &block{dir: interop}
		blocks = append(blocks, interopBlock)
	}
	if !gps.empty() {
		gpsBlock = &block{dir: gps}
		blocks = append(blocks, gpsBlock)
	}
	if ifd1 != nil {
		ifd1Block = &block{dir: ifd1}
		blocks = append(blocks, ifd1Block)
	}

	offset := tiffHeaderSize
	for _, b := range blocks {
		if err := checkDirectory(b.dir); err != nil {
			return nil, err
		}
		b.offset = offset
		offset += directorySize(b.dir)
	}
	thumbOffset := offset
	total := offset + len(doc.thumbnail)
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrExifTooLarge, total)
	}

	if exifBlock != nil {
		ifd0.set(doc.longField(tagExifIFD, uint32(exifBlock.offset)))
	}
	if interopBlock != nil {
		exif.set(doc.longField(tagInteropIFD, uint32(interopBlock.offset)))
	}
	if gpsBlock != nil {
		ifd0.set(doc.longField(tagGPSIFD, uint32(gpsBlock.offset)))
	}
	if ifd1Block != nil && len(doc.thumbnail) > 0 {
		ifd1.set(doc.longField(tagThumbnailOffset, uint32(thumbOffset)))
	}

	buf := make([]byte, total)
	if doc.order == binary.BigEndian {
		copy(buf, "MM")
	} else {
		copy(buf, "II")
	}
	doc.order.PutUint16(buf[2:], 42)
	doc.order.PutUint32(buf[4:], tiffHeaderSize)

	for _, b := range blocks {
		next := uint32(0)
		if b.dir == ifd0 && ifd1Block != nil {
			next = uint32(ifd1Block.offset)
		}
		doc.writeDirectory(buf, b.dir, b.offset, next)
	}
	copy(buf[thumbOffset:], doc.thumbnail)
	return buf, nil
}

func (doc *Document) longField(tag uint16, value uint32) field {
	buf := make([]byte, 4)
	doc.order.PutUint32(buf, value)
	return field{tag: tag, typ: typeLong, count: 1, value: buf}
}

func (doc *Document) writeDirectory(buf []byte, dir *directory, offset int, next uint32) {
	fields := make([]field, len(dir.fields))
	copy(fields, dir.fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	doc.order.PutUint16(buf[offset:], uint16(len(fields)))
	pos := offset + 2
	data := offset + 2 + 12*len(fields) + 4
	for _, f := range fields {
		doc.order.PutUint16(buf[pos:], f.tag)
		doc.order.PutUint16(buf[pos+2:], f.typ)
		doc.order.PutUint32(buf[pos+4:], f.count)
		if len(f.value) <= 4 {
			copy(buf[pos+8:pos+12], f.value)
		} else {
			doc.order.PutUint32(buf[pos+8:], uint32(data))
			copy(buf[data:], f.value)
			data += padded(len(f.value))
		}
		pos += 12
	}
	doc.order.PutUint32(buf[pos:], next)
}

func directorySize(dir *directory) int {
	size := 2 + 12*len(dir.fields) + 4
	for _, f := range dir.fields {
		if len(f.value) > 4 {
			size += padded(len(f.value))
		}
	}
	return size
}

func checkDirectory(dir *directory) error {
	if len(dir.fields) > math.MaxUint16 {
		return fmt.Errorf("%w: %d fields in one IFD", ErrInvalidExif, len(dir.fields))
	}
	for _, f := range dir.fields {
		size := typeSize(f.typ)
		if size == 0 {
			return fmt.Errorf("%w: tag 0x%04x has unknown type %d", ErrInvalidExif, f.tag, f.typ)
		}
		if len(f.value) != size*int(f.count) {
			return fmt.Errorf("%w: tag 0x%04x value is %d bytes, want %d", ErrInvalidExif, f.tag, len(f.value), size*int(f.count))
		}
	}
	return nil
}

// Word alignment for out-of-line values.
func padded(n int) int {
	return n + n%2
}
