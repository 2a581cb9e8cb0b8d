package takeout

import (
	"context"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"immich-takeout/internal/logging"
)

// Metadata is a sidecar located in one of the archives.
type Metadata struct {
	Archive string
	Path    string
	Key     string
	Sidecar *Sidecar

	matches int
}

// Matched reports how many media entries used this sidecar.
func (m *Metadata) Matched() int {
	return m.matches
}

// IndexStats counts what the indexing pass saw.
type IndexStats struct {
	Sidecars   int
	Duplicates int
	Invalid    int
	NotSidecar int
}

// Index maps normalised media paths to sidecars across all archives.
type Index struct {
	byKey  map[string]*Metadata
	byFold map[string][]*Metadata
	byBase map[string][]*Metadata
	order  []*Metadata
	stats  IndexStats
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byKey:  make(map[string]*Metadata),
		byFold: make(map[string][]*Metadata),
		byBase: make(map[string][]*Metadata),
	}
}

// BuildIndex reads every sidecar from the archives in a single pass. Media
// bytes are skipped without buffering.
func BuildIndex(ctx context.Context, archives []Archive, logger *zap.Logger, opts ...WalkOption) (*Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ix := NewIndex()
	for _, archive := range archives {
		actx := logging.WithArchive(ctx, archive.Name)
		before := ix.stats.Sidecars
		err := archive.Walk(actx, func(ctx context.Context, entry Entry, r io.Reader) error {
			if !IsSidecar(entry.Path) {
				return nil
			}
			sidecar, err := ParseSidecar(r)
			if err != nil {
				ix.stats.Invalid++
				logging.WithContext(logging.WithEntry(ctx, entry.Path), logger).Warn("unreadable sidecar", zap.Error(err))
				return nil
			}
			ix.Add(entry.Archive, entry.Path, sidecar)
			return nil
		}, opts...)
		if err != nil {
			return nil, err
		}
		logging.WithContext(actx, logger).Info("indexed archive",
			zap.Int("sidecars", ix.stats.Sidecars-before),
			zap.Int("duplicates", ix.stats.Duplicates),
		)
	}
	return ix, nil
}

// Add registers a sidecar found at sidecarPath. It reports false when the
// document is not a media sidecar or its key is already taken.
func (ix *Index) Add(archive, sidecarPath string, sidecar *Sidecar) (*Metadata, bool) {
	if sidecar == nil || !describesMedia(sidecarPath, sidecar) {
		ix.stats.NotSidecar++
		return nil, false
	}
	key := RepairTruncated(SidecarKey(sidecarPath), sidecar.Title)
	if _, exists := ix.byKey[key]; exists {
		ix.stats.Duplicates++
		return nil, false
	}
	m := &Metadata{Archive: archive, Path: sidecarPath, Key: key, Sidecar: sidecar}
	ix.byKey[key] = m
	fold := strings.ToLower(key)
	ix.byFold[fold] = append(ix.byFold[fold], m)
	base := path.Base(key)
	ix.byBase[base] = append(ix.byBase[base], m)
	ix.order = append(ix.order, m)
	ix.stats.Sidecars++
	return m, true
}

// Lookup finds the sidecar for a media path. Candidates are tried from most to
// least specific: the exact key, the key without extension, the original of an
// "-edited" copy, a case-insensitive key, and finally a base name that is
// unique across every directory.
func (ix *Index) Lookup(mediaPath string) (*Metadata, bool) {
	keys := lookupKeys(mediaPath)
	for _, key := range keys {
		if m, ok := ix.byKey[key]; ok {
			m.matches++
			return m, true
		}
	}
	if found := ix.byFold[strings.ToLower(keys[0])]; len(found) == 1 {
		found[0].matches++
		return found[0], true
	}
	if found := ix.byBase[path.Base(keys[0])]; len(found) == 1 {
		found[0].matches++
		return found[0], true
	}
	return nil, false
}

// Unused returns sidecars no media entry matched, in archive order.
func (ix *Index) Unused() []*Metadata {
	var unused []*Metadata
	for _, m := range ix.order {
		if m.matches == 0 {
			unused = append(unused, m)
		}
	}
	return unused
}

// Len returns the number of indexed sidecars.
func (ix *Index) Len() int {
	return len(ix.order)
}

// Stats returns counters collected while indexing.
func (ix *Index) Stats() IndexStats {
	return ix.stats
}

// describesMedia filters album metadata.json files and other JSON exports
// that share the Takeout tree with real sidecars.
func describesMedia(sidecarPath string, s *Sidecar) bool {
	if path.Base(sidecarPath) == "metadata.json" {
		return false
	}
	return s.Title != "" || s.PhotoTakenTime.Timestamp.set
}
