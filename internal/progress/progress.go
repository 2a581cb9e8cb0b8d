// Package progress draws byte progress bars for archive passes on interactive
// terminals.
package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Tracker creates bars when enabled and is a no-op otherwise.
type Tracker struct {
	out     io.Writer
	enabled bool
}

// New returns a tracker writing to out.
func New(out io.Writer, enabled bool) *Tracker {
	return &Tracker{out: out, enabled: enabled && out != nil}
}

// Disabled returns a tracker that never draws.
func Disabled() *Tracker {
	return &Tracker{}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether bars are drawn.
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Label formats a bar description such as "index takeout-001.tgz (2.1 GB)".
func Label(pass, name string, size int64) string {
	if size < 0 {
		size = 0
	}
	return fmt.Sprintf("%s %s (%s)", pass, name, humanize.Bytes(uint64(size)))
}

// Wrap returns r with its consumption reported to a new bar of size bytes.
// The bar finishes when r reaches EOF or when the returned reader's Finish
// method is called.
func (t *Tracker) Wrap(description string, size int64, r io.Reader) io.Reader {
	if !t.Enabled() {
		return r
	}
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &barReader{r: r, bar: bar}
}

type barReader struct {
	r    io.Reader
	bar  *progressbar.ProgressBar
	done bool
}

func (b *barReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n > 0 {
		_ = b.bar.Add(n)
	}
	if errors.Is(err, io.EOF) {
		b.Finish()
	}
	return n, err
}

// Finish completes the bar once; later calls do nothing.
func (b *barReader) Finish() {
	if b.done {
		return
	}
	b.done = true
	_ = b.bar.Finish()
}
