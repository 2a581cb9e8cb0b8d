package exif

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotJPEG indicates the stream does not start with an SOI marker.
	ErrNotJPEG = errors.New("exif: not a JPEG stream")
	// ErrInvalidExif indicates the APP1 segment could not be decoded or encoded.
	ErrInvalidExif = errors.New("exif: invalid EXIF data")
	// ErrExifTooLarge indicates the rewritten segment exceeds the JPEG
	// 64 KiB segment limit.
	ErrExifTooLarge = errors.New("exif: EXIF segment too large")
	// ErrMalformed indicates the JPEG headers are truncated or corrupt.
	ErrMalformed = errors.New("exif: malformed JPEG headers")
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	markerTEM  = 0x01

	maxSegmentPayload = 0xFFFF - 2
)

var exifPrefix = []byte("Exif\x00\x00")

// EditFunc mutates a decoded document. Returning an error aborts the rewrite
// before anything is written.
type EditFunc func(doc *Document) error

// Result describes what Rewrite did with the stream.
type Result struct {
	// HadExif reports whether the input carried an EXIF APP1 segment.
	HadExif bool
	// Rewritten reports whether a new EXIF segment was written.
	Rewritten bool
	// Err is set when the input was copied unchanged because it could not be
	// rewritten safely.
	Err error
}

type segment struct {
	marker  byte
	payload []byte
	// Standalone markers carry no length field.
	standalone bool
}

// Rewrite copies a JPEG from src to dst, passing its EXIF document through
// edit. Only the header segments before the scan data are buffered; image data
// is streamed.
//
// Streams that are not JPEG, have corrupt headers, or carry undecodable EXIF
// are copied verbatim with Result.Err set. The returned error is reserved for
// edit failures and I/O errors.
func Rewrite(dst io.Writer, src io.Reader, edit EditFunc) (Result, error) {
	var consumed bytes.Buffer
	br := bufio.NewReaderSize(src, 64<<10)
	segments, tail, err := readHeader(io.TeeReader(br, &consumed))
	if err != nil {
		return passthrough(dst, &consumed, br, Result{Err: err})
	}

	exifIndex := -1
	for i, seg := range segments {
		if seg.marker == markerAPP1 && bytes.HasPrefix(seg.payload, exifPrefix) {
			exifIndex = i
			break
		}
	}

	res := Result{HadExif: exifIndex >= 0}
	doc := newDocument()
	if res.HadExif {
		doc, err = decodeDocument(segments[exifIndex].payload[len(exifPrefix):])
		if err != nil {
			res.Err = err
			return passthrough(dst, &consumed, br, res)
		}
	}

	if err := edit(doc); err != nil {
		return res, err
	}
	if !doc.Dirty() {
		return passthrough(dst, &consumed, br, res)
	}

	encoded, err := doc.Encode()
	if err != nil {
		res.Err = err
		return passthrough(dst, &consumed, br, res)
	}
	payload := make([]byte, 0, len(exifPrefix)+len(encoded))
	payload = append(payload, exifPrefix...)
	payload = append(payload, encoded...)
	if len(payload) > maxSegmentPayload {
		res.Err = fmt.Errorf("%w: %d bytes", ErrExifTooLarge, len(payload))
		return passthrough(dst, &consumed, br, res)
	}

	replacement := segment{marker: markerAPP1, payload: payload}
	if exifIndex >= 0 {
		segments[exifIndex] = replacement
	} else {
		at := 0
		for at < len(segments) && segments[at].marker == markerAPP0 {
			at++
		}
		segments = append(segments[:at], append([]segment{replacement}, segments[at:]...)...)
	}

	if err := writeHeader(dst, segments, tail); err != nil {
		return res, err
	}
	if _, err := io.Copy(dst, br); err != nil {
		return res, err
	}
	res.Rewritten = true
	return res, nil
}

func passthrough(dst io.Writer, consumed *bytes.Buffer, rest io.Reader, res Result) (Result, error) {
	if _, err := dst.Write(consumed.Bytes()); err != nil {
		return res, err
	}
	if _, err := io.Copy(dst, rest); err != nil {
		return res, err
	}
	return res, nil
}

// readHeader reads the segments between SOI and the first SOS or EOI marker.
// The returned marker is the one that ended the header.
func readHeader(r io.Reader) ([]segment, byte, error) {
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != markerSOI {
		return nil, 0, ErrNotJPEG
	}

	var segments []segment
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if one[0] != 0xFF {
			return nil, 0, fmt.Errorf("%w: expected marker, found 0x%02x", ErrMalformed, one[0])
		}
		for one[0] == 0xFF {
			if _, err := io.ReadFull(r, one[:]); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		marker := one[0]
		switch {
		case marker == markerSOS || marker == markerEOI:
			return segments, marker, nil
		case marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7):
			segments = append(segments, segment{marker: marker, standalone: true})
			continue
		}

		var length [2]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		n := int(binary.BigEndian.Uint16(length[:]))
		if n < 2 {
			return nil, 0, fmt.Errorf("%w: segment 0x%02x length %d", ErrMalformed, marker, n)
		}
		payload := make([]byte, n-2)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, 0, fmt.Errorf("%w: segment 0x%02x: %v", ErrMalformed, marker, err)
		}
		segments = append(segments, segment{marker: marker, payload: payload})
	}
}

func writeHeader(w io.Writer, segments []segment, tail byte) error {
	bw := bufio.NewWriter(w)
	bw.Write([]byte{0xFF, markerSOI})
	for _, seg := range segments {
		bw.Write([]byte{0xFF, seg.marker})
		if seg.standalone {
			continue
		}
		var length [2]byte
		binary.BigEndian.PutUint16(length[:], uint16(len(seg.payload)+2))
		bw.Write(length[:])
		bw.Write(seg.payload)
	}
	bw.Write([]byte{0xFF, tail})
	return bw.Flush()
}
