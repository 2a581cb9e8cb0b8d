package importer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// spool holds one entry's (possibly rewritten) bytes so uploads can be retried.
// Small entries stay in memory; larger ones spill to a temp file.
type spool struct {
	dir   string
	limit int64
	mem   bytes.Buffer
	file  *os.File
	size  int64
}

func newSpool(dir string, limit int64) *spool {
	return &spool{dir: dir, limit: limit}
}

func (s *spool) Write(p []byte) (int, error) {
	if s.file == nil && int64(s.mem.Len()+len(p)) > s.limit {
		f, err := os.CreateTemp(s.dir, "immich-takeout-*.spool")
		if err != nil {
			return 0, fmt.Errorf("create spool file: %w", err)
		}
		if _, err := f.Write(s.mem.Bytes()); err != nil {
			f.Close()
			os.Remove(f.Name())
			return 0, fmt.Errorf("write spool file: %w", err)
		}
		s.mem = bytes.Buffer{}
		s.file = f
	}
	var n int
	var err error
	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		n, err = s.mem.Write(p)
	}
	s.size += int64(n)
	return n, err
}

// Reader returns a seekable view of everything written so far.
func (s *spool) Reader() (io.ReadSeeker, error) {
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind spool file: %w", err)
		}
		return s.file, nil
	}
	return bytes.NewReader(s.mem.Bytes()), nil
}

// Size returns the number of bytes written.
func (s *spool) Size() int64 {
	return s.size
}

// OnDisk reports whether the spool spilled to a temp file.
func (s *spool) OnDisk() bool {
	return s.file != nil
}

// Close releases the temp file, if any.
func (s *spool) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	s.file = nil
	return err
}
