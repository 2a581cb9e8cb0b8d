package takeout

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrNotArchive marks inputs that are not readable tar archives.
var ErrNotArchive = errors.New("not a tar archive")

// Archive is one Takeout export file on disk.
type Archive struct {
	Path string
	Name string
	Size int64
}

// Entry describes a regular file inside an archive.
type Entry struct {
	Archive string
	Path    string
	Size    int64
	ModTime time.Time
}

// WalkFunc receives each regular file in archive order. The reader is only
// valid until the function returns.
type WalkFunc func(ctx context.Context, entry Entry, r io.Reader) error

// WalkOption customises Archive.Walk.
type WalkOption func(*walkOptions)

type finisher interface {
	Finish()
}

type walkOptions struct {
	wrap func(Archive, io.Reader) io.Reader
}

// WithReaderWrapper wraps the raw (compressed) file stream, e.g. to count bytes
// for a progress bar. A wrapper with a Finish method has it called once the
// walk reaches the end of the archive, since the tar reader stops before the
// underlying stream is drained.
func WithReaderWrapper(fn func(Archive, io.Reader) io.Reader) WalkOption {
	return func(o *walkOptions) {
		o.wrap = fn
	}
}

// OpenArchives resolves and checks every archive path before any work starts.
func OpenArchives(paths []string) ([]Archive, error) {
	if len(paths) == 0 {
		return nil, errors.New("no archives given")
	}
	archives := make([]Archive, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("resolve archive %q: %w", p, err)
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("archive %s is a directory: %w", p, ErrNotArchive)
		}
		seen[abs] = struct{}{}
		archives = append(archives, Archive{Path: abs, Name: filepath.Base(abs), Size: info.Size()})
	}
	return archives, nil
}

// Walk streams the archive sequentially, transparently decompressing gzip.
func (a Archive) Walk(ctx context.Context, fn WalkFunc, opts ...WalkOption) error {
	var options walkOptions
	for _, opt := range opts {
		opt(&options)
	}

	file, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", a.Name, err)
	}
	defer file.Close()

	var src io.Reader = file
	if options.wrap != nil {
		src = options.wrap(a, file)
	}
	buffered := bufio.NewReaderSize(src, 64<<10)

	var stream io.Reader = buffered
	if isGzip(buffered) {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", a.Name, ErrNotArchive, err)
		}
		defer gz.Close()
		stream = gz
	}

	tr := tar.NewReader(stream)
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			if f, ok := src.(finisher); ok {
				f.Finish()
			}
			return nil
		}
		if err != nil {
			if first {
				return fmt.Errorf("%s: %w: %v", a.Name, ErrNotArchive, err)
			}
			return fmt.Errorf("read %s: %w", a.Name, err)
		}
		first = false
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		entry := Entry{
			Archive: a.Name,
			Path:    cleanEntryPath(hdr.Name),
			Size:    hdr.Size,
			ModTime: hdr.ModTime.UTC(),
		}
		if err := fn(ctx, entry, tr); err != nil {
			return err
		}
	}
}

func isGzip(r *bufio.Reader) bool {
	magic, err := r.Peek(2)
	return err == nil && magic[0] == 0x1f && magic[1] == 0x8b
}

func cleanEntryPath(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	return path.Clean(name)
}
