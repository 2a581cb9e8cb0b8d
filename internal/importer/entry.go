package importer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"immich-takeout/internal/capture"
	"immich-takeout/internal/exif"
	"immich-takeout/internal/immich"
	"immich-takeout/internal/logging"
	"immich-takeout/internal/media"
	"immich-takeout/internal/report"
	"immich-takeout/internal/state"
	"immich-takeout/internal/takeout"
	"immich-takeout/internal/xmp"
)

// item carries everything known about one media entry.
type item struct {
	entry       takeout.Entry
	archivePath string
	name        string
	meta        *takeout.Metadata
	taken       time.Time
	hasTaken    bool
	location    *media.Coordinates
	description string
	favorite    bool
}

// outcome is what prepare and upload learned about an item.
type outcome struct {
	decision capture.Decision
	checksum string
	digest   string
	sidecar  []byte
	exif     exif.Result
}

// processEntry handles one archive entry. Only fatal conditions are returned;
// per-entry failures are counted and reported.
func (im *Importer) processEntry(ctx context.Context, index *takeout.Index, entry takeout.Entry, r io.Reader, stats *Stats) error {
	if takeout.IsSidecar(entry.Path) {
		return nil
	}
	logger := logging.WithContext(logging.WithEntry(ctx, entry.Path), im.logger)
	if reason := takeout.IgnoreReason(entry.Path); reason != "" {
		stats.Ignored++
		logger.Debug("entry ignored", zap.String("reason", reason))
		return nil
	}
	it := item{
		entry:       entry,
		archivePath: entry.Archive + "/" + entry.Path,
		name:        path.Base(entry.Path),
	}
	row := report.Row{File: it.name, ArchiveFile: it.archivePath}

	if _, skip := im.skip[media.Ext(entry.Path)]; skip {
		stats.Media++
		stats.SkippedUnsupported++
		row.State = report.StateUnsupported
		im.report.Add(row)
		logger.Debug("skipped unsupported extension")
		return nil
	}
	if media.KindOf(entry.Path) == media.KindOther {
		stats.Ignored++
		logger.Debug("entry ignored", zap.String("reason", "not media"))
		return nil
	}
	stats.Media++

	if im.state != nil {
		seen, err := im.state.Seen(ctx, it.archivePath)
		if err != nil {
			return fmt.Errorf("resume state: %w", err)
		}
		if seen {
			stats.SkippedAlreadyUploaded++
			row.State = report.StateAlreadyUploaded
			im.report.Add(row)
			return nil
		}
	}

	meta, matched := index.Lookup(entry.Path)
	if matched {
		it.meta = meta
		row.ArchiveMetadata = meta.Archive + "/" + meta.Path
		it.name = assetName(it.name, meta.Sidecar.Title)
		it.taken, it.hasTaken = meta.Sidecar.TakenAt()
		if loc, ok := meta.Sidecar.Location(); ok {
			it.location = &loc
		}
		it.description = meta.Sidecar.Description
		it.favorite = meta.Sidecar.Favorited
		if meta.Sidecar.PartnerShared() && !im.opts.IncludePartnerShared {
			stats.SkippedPartner++
			row.State = report.StatePartnerSharing
			im.report.Add(row)
			return nil
		}
	} else if !im.opts.IncludeUnmatched {
		stats.DanglingFiles++
		row.State = report.StateDanglingFile
		im.report.Add(row)
		logger.Warn("no sidecar found for media")
		return nil
	}
	if it.hasTaken {
		row.PhotoTakenTime = it.taken.Format(time.RFC3339)
	}

	rowState, assetID, err := im.handle(ctx, logger, it, r, stats)
	row.State = rowState
	row.AssetID = assetID
	if err == nil {
		im.report.Add(row)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	stats.Failed++
	row.State = report.StateFailed
	row.Detail = err.Error()
	im.report.Add(row)
	logger.Error("upload failed", zap.Error(err))
	if errors.Is(err, immich.ErrUnauthorized) {
		return err
	}
	if im.opts.FailFast {
		return fmt.Errorf("%s: %w", it.archivePath, err)
	}
	return nil
}

// handle spools, patches and uploads one matched (or deliberately unmatched)
// item, returning the report state and asset id.
func (im *Importer) handle(ctx context.Context, logger *zap.Logger, it item, r io.Reader, stats *Stats) (report.State, string, error) {
	sp := newSpool(im.opts.SpoolDir, im.opts.SpoolMemory)
	defer func() {
		if err := sp.Close(); err != nil {
			logger.Warn("remove spool file", zap.Error(err))
		}
	}()

	out, err := im.prepare(it, r, sp)
	if err != nil {
		return report.StateFailed, "", err
	}
	if out.exif.Err != nil {
		logger.Warn("exif left unchanged", zap.Error(out.exif.Err))
	}
	if out.exif.Rewritten {
		stats.ExifRewritten++
	}
	stats.Bytes += sp.Size()

	if im.state != nil {
		prev, found, err := im.state.FindDigest(ctx, out.digest)
		if err != nil {
			return report.StateFailed, "", fmt.Errorf("resume state: %w", err)
		}
		if found {
			stats.SkippedAlreadyUploaded++
			logger.Info("identical content already uploaded", zap.String("first_seen", prev.ArchivePath))
			if !im.opts.DryRun {
				if err := im.record(ctx, it, prev.AssetID, out.digest, state.StatusDuplicate); err != nil {
					return report.StateFailed, prev.AssetID, err
				}
			}
			return report.StateAlreadyUploaded, prev.AssetID, nil
		}
	}

	if im.opts.DryRun {
		stats.DryRun++
		logger.Info("dry run: would upload",
			zap.String("name", it.name),
			zap.Time("created_at", out.decision.Time),
			zap.Bool("time_changed", out.decision.Changed),
			zap.Int64("bytes", sp.Size()),
		)
		return report.StateDryRun, "", nil
	}

	data, err := sp.Reader()
	if err != nil {
		return report.StateFailed, "", err
	}
	res, err := im.uploader.Upload(ctx, immich.UploadRequest{
		DeviceAssetID:  immich.DeviceAssetID(it.name, it.entry.Size),
		Filename:       it.name,
		FileCreatedAt:  out.decision.Time,
		FileModifiedAt: it.entry.ModTime,
		IsFavorite:     it.favorite,
		Data:           data,
		Checksum:       out.checksum,
		Sidecar:        out.sidecar,
	})
	if err != nil {
		return report.StateFailed, "", err
	}
	alogger := logger.With(zap.String(logging.FieldAssetID, res.ID))

	status, rowState := state.StatusUploaded, report.StateUploaded
	if res.Duplicate {
		stats.Duplicates++
		status, rowState = state.StatusDuplicate, report.StateDuplicate
		alogger.Info("duplicate", zap.String("name", it.name))
	} else {
		stats.Uploaded++
		alogger.Info("uploaded", zap.String("name", it.name), zap.Int64("bytes", sp.Size()))
	}
	if err := im.record(ctx, it, res.ID, out.digest, status); err != nil {
		return report.StateFailed, res.ID, err
	}

	if !res.Duplicate && im.opts.UpdateMetadata && it.hasTaken && out.decision.Changed {
		if err := im.uploader.UpdateAsset(ctx, res.ID, assetUpdate(it, out.decision)); err != nil {
			return report.StateFailed, res.ID, fmt.Errorf("uploaded as %s but metadata update failed: %w", res.ID, err)
		}
		stats.MetadataUpdated++
		alogger.Debug("metadata updated", zap.Time("date_time_original", out.decision.Time))
	}
	return rowState, res.ID, nil
}

// prepare copies the entry into the spool, rewriting EXIF on the way when
// possible, and decides the capture time.
func (im *Importer) prepare(it item, r io.Reader, sp *spool) (outcome, error) {
	var out outcome
	sha := sha1.New()
	digest := state.NewDigest()
	w := io.MultiWriter(sp, sha, digest)

	decided := false
	if it.hasTaken && im.opts.RewriteEXIF && media.IsJPEG(it.entry.Path) {
		res, err := exif.Rewrite(w, r, func(doc *exif.Document) error {
			embedded, zoned, ok := doc.CaptureTime()
			where := it.location
			if where == nil {
				if pos, has := doc.GPS(); has {
					where = &pos
				}
			}
			out.decision = capture.Reconcile(capture.Embedded{Time: embedded, Zoned: zoned, OK: ok}, it.taken, where)
			decided = true
			if out.decision.Changed {
				doc.SetCaptureTime(out.decision.Time)
			}
			if it.location != nil {
				if _, has := doc.GPS(); !has {
					doc.SetGPS(*it.location)
				}
			}
			if it.description != "" && doc.Description() == "" {
				doc.SetDescription(it.description)
			}
			return nil
		})
		if err != nil {
			return out, fmt.Errorf("rewrite exif: %w", err)
		}
		out.exif = res
	} else if _, err := io.Copy(w, r); err != nil {
		return out, fmt.Errorf("read entry: %w", err)
	}

	if !decided {
		if it.hasTaken {
			out.decision = capture.FileTime(it.entry.ModTime, it.taken, it.location)
		} else {
			out.decision = capture.Decision{Time: it.entry.ModTime}
		}
	}
	if im.opts.XMPSidecars && it.meta != nil && !media.IsJPEG(it.entry.Path) {
		props := xmp.Properties{Location: it.location, Description: it.description}
		if it.hasTaken {
			props.Taken = out.decision.Time
		}
		out.sidecar = xmp.Packet(props)
	}
	out.checksum = hex.EncodeToString(sha.Sum(nil))
	out.digest = state.DigestString(digest)
	return out, nil
}

func (im *Importer) record(ctx context.Context, it item, assetID, digest, status string) error {
	if im.state == nil {
		return nil
	}
	return im.state.Record(ctx, state.Record{
		ArchivePath: it.archivePath,
		AssetID:     assetID,
		Digest:      digest,
		Status:      status,
	})
}

// assetName restores the full file name from the sidecar title when the
// archive entry name was truncated by the exporter.
func assetName(base, title string) string {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if title == "" || len(title) <= len(base) || stem == "" {
		return base
	}
	if !strings.EqualFold(path.Ext(title), ext) || !strings.HasPrefix(title, stem) {
		return base
	}
	return title
}

func assetUpdate(it item, decision capture.Decision) immich.AssetUpdate {
	update := immich.AssetUpdate{DateTimeOriginal: decision.Time.Format(time.RFC3339)}
	if it.location != nil {
		lat, lon := it.location.Latitude, it.location.Longitude
		update.Latitude = &lat
		update.Longitude = &lon
	}
	if it.description != "" {
		desc := it.description
		update.Description = &desc
	}
	return update
}
