package testsupport

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// ArchiveEntry is one file written by WriteArchive.
type ArchiveEntry struct {
	Name    string
	Body    []byte
	ModTime time.Time
}

// DefaultModTime is the tar header time used when an entry leaves ModTime
// unset.
var DefaultModTime = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

// WriteArchive writes a Takeout-style tar (gzip-compressed when the name ends
// in .tgz or .tar.gz) under dir and returns its path.
func WriteArchive(t testing.TB, dir, name string, entries ...ArchiveEntry) string {
	t.Helper()

	target := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	f, err := os.Create(target)
	if err != nil {
		t.Fatalf("create %s: %v", target, err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if filepath.Ext(name) == ".tgz" || filepath.Ext(name) == ".gz" {
		gz = gzip.NewWriter(f)
		w = gz
	}
	tw := tar.NewWriter(w)
	for _, entry := range entries {
		mod := entry.ModTime
		if mod.IsZero() {
			mod = DefaultModTime
		}
		hdr := &tar.Header{
			Name:     entry.Name,
			Mode:     0o644,
			Size:     int64(len(entry.Body)),
			ModTime:  mod,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", entry.Name, err)
		}
		if _, err := tw.Write(entry.Body); err != nil {
			t.Fatalf("tar body %s: %v", entry.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			t.Fatalf("close gzip: %v", err)
		}
	}
	return target
}

// Sidecar describes a Google Photos metadata document for fixtures.
type Sidecar struct {
	Title         string
	Description   string
	Taken         time.Time
	Latitude      float64
	Longitude     float64
	Altitude      float64
	Favorited     bool
	PartnerShared bool
}

// JSON renders the sidecar the way Takeout does, with quoted timestamps.
func (s Sidecar) JSON() []byte {
	doc := map[string]any{
		"title":       s.Title,
		"description": s.Description,
		"creationTime": map[string]string{
			"timestamp": strconv.FormatInt(s.Taken.Unix(), 10),
		},
		"geoData": map[string]float64{
			"latitude":  s.Latitude,
			"longitude": s.Longitude,
			"altitude":  s.Altitude,
		},
		"geoDataExif": map[string]float64{
			"latitude":  0,
			"longitude": 0,
			"altitude":  0,
		},
		"url": "https://photos.google.com/photo/fixture",
	}
	if !s.Taken.IsZero() {
		doc["photoTakenTime"] = map[string]string{
			"timestamp": strconv.FormatInt(s.Taken.Unix(), 10),
			"formatted": s.Taken.UTC().Format("Jan 2, 2006, 3:04:05 PM UTC"),
		}
	}
	if s.Favorited {
		doc["favorited"] = true
	}
	origin := map[string]any{"mobileUpload": map[string]any{}}
	if s.PartnerShared {
		origin = map[string]any{"fromPartnerSharing": map[string]any{}}
	}
	doc["googlePhotosOrigin"] = origin
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}
