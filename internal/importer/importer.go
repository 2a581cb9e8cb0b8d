package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"immich-takeout/internal/config"
	"immich-takeout/internal/immich"
	"immich-takeout/internal/logging"
	"immich-takeout/internal/progress"
	"immich-takeout/internal/report"
	"immich-takeout/internal/state"
	"immich-takeout/internal/takeout"
)

// ErrUploadsFailed is returned after a run in which at least one entry failed.
var ErrUploadsFailed = errors.New("one or more uploads failed")

// Uploader is the subset of the Immich client the importer needs.
type Uploader interface {
	Upload(ctx context.Context, req immich.UploadRequest) (immich.UploadResult, error)
	UpdateAsset(ctx context.Context, id string, update immich.AssetUpdate) error
}

// StateStore remembers uploads across runs.
type StateStore interface {
	Seen(ctx context.Context, archivePath string) (bool, error)
	FindDigest(ctx context.Context, digest string) (state.Record, bool, error)
	Record(ctx context.Context, rec state.Record) error
}

// Options control matching and patching behaviour.
type Options struct {
	DryRun               bool
	IncludeUnmatched     bool
	IncludePartnerShared bool
	SkipExtensions       []string
	RewriteEXIF          bool
	XMPSidecars          bool
	UpdateMetadata       bool
	FailFast             bool
	SpoolDir             string
	SpoolMemory          int64
}

// OptionsFromConfig maps the import section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IncludeUnmatched:     cfg.Import.IncludeUnmatched,
		IncludePartnerShared: cfg.Import.IncludePartnerShared,
		SkipExtensions:       append([]string(nil), cfg.Import.SkipExtensions...),
		RewriteEXIF:          cfg.Import.RewriteEXIF,
		XMPSidecars:          cfg.Import.XMPSidecars,
		UpdateMetadata:       cfg.Import.UpdateMetadata,
		FailFast:             cfg.Import.FailFast,
		SpoolDir:             cfg.Import.SpoolDir,
		SpoolMemory:          int64(cfg.Import.SpoolMemoryMiB) << 20,
	}
}

// Importer uploads Takeout archives to Immich.
type Importer struct {
	opts     Options
	skip     map[string]struct{}
	uploader Uploader
	state    StateStore
	report   *report.Report
	progress *progress.Tracker
	logger   *zap.Logger
}

// Option customizes the importer.
type Option func(*Importer)

// WithState enables resume tracking.
func WithState(store StateStore) Option {
	return func(im *Importer) {
		im.state = store
	}
}

// WithReport collects a row for every entry into r.
func WithReport(r *report.Report) Option {
	return func(im *Importer) {
		if r != nil {
			im.report = r
		}
	}
}

// WithProgress draws byte progress for each archive pass.
func WithProgress(tracker *progress.Tracker) Option {
	return func(im *Importer) {
		if tracker != nil {
			im.progress = tracker
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// New constructs an importer. uploader may be nil for dry runs.
func New(opts Options, uploader Uploader, options ...Option) *Importer {
	if opts.SpoolMemory <= 0 {
		opts.SpoolMemory = 32 << 20
	}
	im := &Importer{
		opts:     opts,
		skip:     make(map[string]struct{}, len(opts.SkipExtensions)),
		uploader: uploader,
		report:   report.New(),
		progress: progress.Disabled(),
		logger:   logging.NewNop(),
	}
	for _, ext := range opts.SkipExtensions {
		im.skip[strings.ToLower(ext)] = struct{}{}
	}
	for _, opt := range options {
		opt(im)
	}
	return im
}

// Report returns the collected rows.
func (im *Importer) Report() *report.Report {
	return im.report
}

// Run indexes the sidecars of all archives, then uploads their media. It
// returns ErrUploadsFailed when any entry failed, or the first fatal error.
func (im *Importer) Run(ctx context.Context, archives []takeout.Archive) (Stats, error) {
	var stats Stats
	stats.Archives = len(archives)
	if !im.opts.DryRun && im.uploader == nil {
		return stats, errors.New("importer: uploader required unless dry run")
	}
	base := im.logger.With(zap.String(logging.FieldComponent, "importer"))
	logger := logging.WithContext(ctx, base)

	started := time.Now()
	index, err := takeout.BuildIndex(ctx, archives, base, im.progressWrapper("index"))
	if err != nil {
		return stats, fmt.Errorf("index sidecars: %w", err)
	}
	idx := index.Stats()
	stats.Sidecars = index.Len()
	logger.Info("sidecar index built",
		zap.Int("sidecars", idx.Sidecars),
		zap.Int("duplicates", idx.Duplicates),
		zap.Int("invalid", idx.Invalid),
		zap.Int("not_sidecar", idx.NotSidecar),
		zap.Duration("elapsed", time.Since(started)),
	)

	for _, archive := range archives {
		actx := logging.WithArchive(ctx, archive.Name)
		err := archive.Walk(actx, func(ctx context.Context, entry takeout.Entry, r io.Reader) error {
			return im.processEntry(ctx, index, entry, r, &stats)
		}, im.progressWrapper("upload"))
		if err != nil {
			return stats, err
		}
		logging.WithContext(actx, base).Info("archive processed",
			zap.Int("uploaded", stats.Uploaded),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("failed", stats.Failed),
		)
	}

	for _, m := range index.Unused() {
		stats.DanglingMetadata++
		row := report.Row{
			File:            path.Base(m.Path),
			ArchiveMetadata: m.Archive + "/" + m.Path,
			State:           report.StateDanglingMeta,
		}
		if taken, ok := m.Sidecar.TakenAt(); ok {
			row.PhotoTakenTime = taken.Format(time.RFC3339)
		}
		im.report.Add(row)
		logger.Debug("sidecar without media", zap.String(logging.FieldEntry, m.Path), zap.String(logging.FieldArchive, m.Archive))
	}

	logger.Info("import finished",
		zap.Int("media", stats.Media),
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("skipped", stats.Skipped()),
		zap.Int("dangling_files", stats.DanglingFiles),
		zap.Int("dangling_metadata", stats.DanglingMetadata),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", time.Since(started)),
	)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d of %d media entries", ErrUploadsFailed, stats.Failed, stats.Media)
	}
	return stats, nil
}

func (im *Importer) progressWrapper(pass string) takeout.WalkOption {
	return takeout.WithReaderWrapper(func(a takeout.Archive, r io.Reader) io.Reader {
		return im.progress.Wrap(progress.Label(pass, a.Name, a.Size), a.Size, r)
	})
}
