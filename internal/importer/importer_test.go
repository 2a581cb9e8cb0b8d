package importer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immich-takeout/internal/exif"
	"immich-takeout/internal/immich"
	"immich-takeout/internal/report"
	"immich-takeout/internal/state"
	"immich-takeout/internal/takeout"
	"immich-takeout/internal/testsupport"
)

type upload struct {
	req  immich.UploadRequest
	data []byte
}

type fakeUploader struct {
	uploads    []upload
	updates    map[string]immich.AssetUpdate
	duplicates map[string]bool
	failures   map[string]error
	next       int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		updates:    make(map[string]immich.AssetUpdate),
		duplicates: make(map[string]bool),
		failures:   make(map[string]error),
	}
}

func (f *fakeUploader) Upload(_ context.Context, req immich.UploadRequest) (immich.UploadResult, error) {
	if err := f.failures[req.Filename]; err != nil {
		return immich.UploadResult{}, err
	}
	if _, err := req.Data.Seek(0, io.SeekStart); err != nil {
		return immich.UploadResult{}, err
	}
	data, err := io.ReadAll(req.Data)
	if err != nil {
		return immich.UploadResult{}, err
	}
	f.uploads = append(f.uploads, upload{req: req, data: data})
	f.next++
	return immich.UploadResult{ID: fmt.Sprintf("asset-%d", f.next), Duplicate: f.duplicates[req.Filename]}, nil
}

func (f *fakeUploader) UpdateAsset(_ context.Context, id string, update immich.AssetUpdate) error {
	f.updates[id] = update
	return nil
}

func (f *fakeUploader) byName(t *testing.T, name string) upload {
	t.Helper()
	for _, u := range f.uploads {
		if u.req.Filename == name {
			return u
		}
	}
	t.Fatalf("no upload named %s", name)
	return upload{}
}

func defaultOptions(t *testing.T) Options {
	return Options{
		SkipExtensions: []string{".vob", ".thm"},
		RewriteEXIF:    true,
		XMPSidecars:    true,
		UpdateMetadata: true,
		SpoolDir:       t.TempDir(),
		SpoolMemory:    1 << 20,
	}
}

func openArchives(t *testing.T, paths ...string) []takeout.Archive {
	t.Helper()
	archives, err := takeout.OpenArchives(paths)
	require.NoError(t, err)
	return archives
}

func rowsByFile(r *report.Report) map[string]report.Row {
	rows := make(map[string]report.Row)
	for _, row := range r.Rows() {
		rows[row.File] = row
	}
	return rows
}

const photos = "Takeout/Google Photos/"

func TestRunUploadsAcrossArchives(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2018, 9, 23, 21, 42, 21, 0, time.UTC)
	videoTaken := time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)

	jpeg := testsupport.JPEG{DateTimeOriginal: "2018:09:23 17:42:21"}.Bytes()
	first := testsupport.WriteArchive(t, dir, "takeout-001.tgz",
		testsupport.ArchiveEntry{Name: photos + "Trip/IMG_0001.jpg", Body: jpeg},
		testsupport.ArchiveEntry{Name: photos + "Trip/VID_0002.mp4", Body: []byte("mp4-bytes")},
		testsupport.ArchiveEntry{Name: photos + "Trip/lonely.png", Body: []byte("png")},
		testsupport.ArchiveEntry{Name: photos + "Trip/clip.vob", Body: []byte("vob")},
		testsupport.ArchiveEntry{Name: "Takeout/archive_browser.html", Body: []byte("<html>")},
	)
	second := testsupport.WriteArchive(t, dir, "takeout-002.tar",
		testsupport.ArchiveEntry{Name: photos + "Trip/IMG_0001.jpg.json", Body: testsupport.Sidecar{
			Title: "IMG_0001.jpg", Taken: taken, Latitude: 40.7128, Longitude: -74.006, Description: "Skyline",
		}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "Trip/VID_0002.mp4.json", Body: testsupport.Sidecar{
			Title: "VID_0002.mp4", Taken: videoTaken, Favorited: true,
		}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "Trip/clip.vob.json", Body: testsupport.Sidecar{Title: "clip.vob", Taken: taken}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "Trip/orphan.jpg.json", Body: testsupport.Sidecar{Title: "orphan.jpg", Taken: taken}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "Trip/metadata.json", Body: []byte(`{"title":"Trip"}`)},
	)

	uploader := newFakeUploader()
	im := New(defaultOptions(t), uploader)
	stats, err := im.Run(context.Background(), openArchives(t, first, second))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Archives)
	assert.Equal(t, 2, stats.Uploaded)
	assert.Equal(t, 1, stats.DanglingFiles)
	assert.Equal(t, 2, stats.DanglingMetadata)
	assert.Equal(t, 1, stats.SkippedUnsupported)
	assert.Equal(t, 1, stats.ExifRewritten)
	assert.Equal(t, 2, stats.MetadataUpdated)
	require.Len(t, uploader.uploads, 2)

	photo := uploader.byName(t, "IMG_0001.jpg")
	assert.Equal(t, "2018-09-23T17:42:21-04:00", photo.req.FileCreatedAt.Format(time.RFC3339))
	assert.Equal(t, immich.DeviceAssetID("IMG_0001.jpg", int64(len(jpeg))), photo.req.DeviceAssetID)
	assert.Nil(t, photo.req.Sidecar)
	sum := sha1.Sum(photo.data)
	assert.Equal(t, hex.EncodeToString(sum[:]), photo.req.Checksum)

	_, err = exif.Rewrite(io.Discard, bytes.NewReader(photo.data), func(doc *exif.Document) error {
		got, zoned, ok := doc.CaptureTime()
		assert.True(t, ok)
		assert.True(t, zoned)
		assert.True(t, got.Equal(taken))
		pos, ok := doc.GPS()
		assert.True(t, ok)
		assert.InDelta(t, 40.7128, pos.Latitude, 1e-5)
		assert.Equal(t, "Skyline", doc.Description())
		return nil
	})
	require.NoError(t, err)

	update := uploader.updates["asset-1"]
	assert.Equal(t, "2018-09-23T17:42:21-04:00", update.DateTimeOriginal)
	require.NotNil(t, update.Latitude)
	assert.InDelta(t, -74.006, *update.Longitude, 1e-9)

	video := uploader.byName(t, "VID_0002.mp4")
	assert.True(t, video.req.IsFavorite)
	assert.True(t, video.req.FileCreatedAt.Equal(videoTaken))
	assert.True(t, video.req.FileModifiedAt.Equal(testsupport.DefaultModTime))
	assert.Contains(t, string(video.req.Sidecar), "<exif:DateTimeOriginal>2019-01-02T03:04:05+00:00</exif:DateTimeOriginal>")
	assert.Equal(t, "mp4-bytes", string(video.data))

	rows := rowsByFile(im.Report())
	assert.Equal(t, report.StateUploaded, rows["IMG_0001.jpg"].State)
	assert.Equal(t, "takeout-002.tar/"+photos+"Trip/IMG_0001.jpg.json", rows["IMG_0001.jpg"].ArchiveMetadata)
	assert.Equal(t, report.StateDanglingFile, rows["lonely.png"].State)
	assert.Equal(t, report.StateUnsupported, rows["clip.vob"].State)
	assert.Equal(t, report.StateDanglingMeta, rows["orphan.jpg.json"].State)
}

func TestRunMatchesNumberedAndEditedCopies(t *testing.T) {
	dir := t.TempDir()
	original := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	copyTaken := time.Date(2020, 5, 2, 11, 0, 0, 0, time.UTC)
	plain := func(scan string) []byte {
		return testsupport.JPEG{NoExif: true, ScanData: []byte(scan)}.Bytes()
	}

	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "P/IMG.jpg", Body: plain("original")},
		testsupport.ArchiveEntry{Name: photos + "P/IMG(1).jpg", Body: plain("copy")},
		testsupport.ArchiveEntry{Name: photos + "P/IMG-edited.jpg", Body: plain("edited")},
		testsupport.ArchiveEntry{Name: photos + "P/IMG.jpg.json", Body: testsupport.Sidecar{Title: "IMG.jpg", Taken: original}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "P/IMG.jpg(1).json", Body: testsupport.Sidecar{Title: "IMG.jpg", Taken: copyTaken}.JSON()},
	)

	uploader := newFakeUploader()
	im := New(defaultOptions(t), uploader)
	stats, err := im.Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Uploaded)
	assert.Equal(t, 0, stats.DanglingMetadata)

	assert.True(t, uploader.byName(t, "IMG.jpg").req.FileCreatedAt.Equal(original))
	assert.True(t, uploader.byName(t, "IMG(1).jpg").req.FileCreatedAt.Equal(copyTaken))
	assert.True(t, uploader.byName(t, "IMG-edited.jpg").req.FileCreatedAt.Equal(original))
}

func TestRunRestoresTruncatedNames(t *testing.T) {
	dir := t.TempDir()
	folder := photos + "Photos from 2023/"
	title := "story_image_v2_336d088f-fbe5-43a1-b765-58c29b9a5b2f_640_wide.jpg"
	taken := time.Date(2017, 7, 7, 7, 7, 7, 0, time.UTC)

	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: folder + "story_image_v2_336d088f-fbe5-43a1-b765-58c29b9a.jpg", Body: testsupport.JPEG{}.Bytes()},
		testsupport.ArchiveEntry{Name: folder + "story_image_v2_336d088f-fbe5-43a1-b765-58c29b9.json", Body: testsupport.Sidecar{Title: title, Taken: taken}.JSON()},
	)

	uploader := newFakeUploader()
	stats, err := New(defaultOptions(t), uploader).Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 0, stats.DanglingMetadata)
	up := uploader.byName(t, title)
	assert.True(t, up.req.FileCreatedAt.Equal(taken))
}

func TestRunSkipsPartnerSharedUnlessEnabled(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "Shared/p.png", Body: []byte("png")},
		testsupport.ArchiveEntry{Name: photos + "Shared/p.png.json", Body: testsupport.Sidecar{Title: "p.png", Taken: taken, PartnerShared: true}.JSON()},
	)

	uploader := newFakeUploader()
	im := New(defaultOptions(t), uploader)
	stats, err := im.Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedPartner)
	assert.Empty(t, uploader.uploads)
	assert.Equal(t, report.StatePartnerSharing, rowsByFile(im.Report())["p.png"].State)

	opts := defaultOptions(t)
	opts.IncludePartnerShared = true
	stats, err = New(opts, uploader).Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
}

func TestRunIncludeUnmatchedUsesArchiveTime(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2015, 3, 3, 3, 3, 3, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "X/alone.heic", Body: []byte("heic"), ModTime: mod},
	)

	opts := defaultOptions(t)
	opts.IncludeUnmatched = true
	uploader := newFakeUploader()
	stats, err := New(opts, uploader).Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 0, stats.MetadataUpdated)
	up := uploader.byName(t, "alone.heic")
	assert.True(t, up.req.FileCreatedAt.Equal(mod))
	assert.Nil(t, up.req.Sidecar)
}

func TestRunDryRunUploadsNothing(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "a.jpg", Body: testsupport.JPEG{}.Bytes()},
		testsupport.ArchiveEntry{Name: photos + "a.jpg.json", Body: testsupport.Sidecar{Title: "a.jpg", Taken: taken}.JSON()},
	)

	opts := defaultOptions(t)
	opts.DryRun = true
	im := New(opts, nil)
	stats, err := im.Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DryRun)
	assert.Equal(t, 0, stats.Uploaded)
	assert.Equal(t, report.StateDryRun, rowsByFile(im.Report())["a.jpg"].State)
}

func TestRunContinuesAfterEntryFailure(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "bad.png", Body: []byte("png")},
		testsupport.ArchiveEntry{Name: photos + "bad.png.json", Body: testsupport.Sidecar{Title: "bad.png", Taken: taken}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "good.png", Body: []byte("png2")},
		testsupport.ArchiveEntry{Name: photos + "good.png.json", Body: testsupport.Sidecar{Title: "good.png", Taken: taken}.JSON()},
	)

	uploader := newFakeUploader()
	uploader.failures["bad.png"] = &immich.StatusError{Method: "POST", Path: "/assets", StatusCode: 400, Body: "bad request"}
	im := New(defaultOptions(t), uploader)
	stats, err := im.Run(context.Background(), openArchives(t, archive))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUploadsFailed))
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Uploaded)

	row := rowsByFile(im.Report())["bad.png"]
	assert.Equal(t, report.StateFailed, row.State)
	assert.Contains(t, row.Detail, "http 400")

	opts := defaultOptions(t)
	opts.FailFast = true
	failFast := newFakeUploader()
	failFast.failures["bad.png"] = errors.New("boom")
	stats, err = New(opts, failFast).Run(context.Background(), openArchives(t, archive))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUploadsFailed))
	assert.Equal(t, 0, stats.Uploaded)
}

func TestRunAbortsOnUnauthorized(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "a.png", Body: []byte("a")},
		testsupport.ArchiveEntry{Name: photos + "a.png.json", Body: testsupport.Sidecar{Title: "a.png", Taken: taken}.JSON()},
		testsupport.ArchiveEntry{Name: photos + "b.png", Body: []byte("b")},
		testsupport.ArchiveEntry{Name: photos + "b.png.json", Body: testsupport.Sidecar{Title: "b.png", Taken: taken}.JSON()},
	)

	uploader := newFakeUploader()
	uploader.failures["a.png"] = &immich.StatusError{Method: "POST", Path: "/assets", StatusCode: 401}
	stats, err := New(defaultOptions(t), uploader).Run(context.Background(), openArchives(t, archive))
	require.Error(t, err)
	assert.True(t, errors.Is(err, immich.ErrUnauthorized))
	assert.Equal(t, 0, stats.Uploaded)
	assert.Empty(t, uploader.uploads)
}

func TestRunResumesFromState(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	sidecar := testsupport.Sidecar{Title: "same.png", Taken: taken}.JSON()
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "Photos from 2021/same.png", Body: []byte("identical")},
		testsupport.ArchiveEntry{Name: photos + "Photos from 2021/same.png.json", Body: sidecar},
		testsupport.ArchiveEntry{Name: photos + "Album/same.png", Body: []byte("identical")},
		testsupport.ArchiveEntry{Name: photos + "Album/same.png.json", Body: sidecar},
	)

	ctx := context.Background()
	store, err := state.Open(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	defer store.Close()

	uploader := newFakeUploader()
	stats, err := New(defaultOptions(t), uploader, WithState(store)).Run(ctx, openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 1, stats.SkippedAlreadyUploaded)

	again := newFakeUploader()
	stats, err = New(defaultOptions(t), again, WithState(store)).Run(ctx, openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Uploaded)
	assert.Equal(t, 2, stats.SkippedAlreadyUploaded)
	assert.Empty(t, again.uploads)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunDuplicatesSkipMetadataUpdate(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "d.png", Body: []byte("d")},
		testsupport.ArchiveEntry{Name: photos + "d.png.json", Body: testsupport.Sidecar{Title: "d.png", Taken: taken}.JSON()},
	)
	uploader := newFakeUploader()
	uploader.duplicates["d.png"] = true
	stats, err := New(defaultOptions(t), uploader).Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.MetadataUpdated)
	assert.Empty(t, uploader.updates)
}

func TestRunZonesFromEmbeddedGPSWhenSidecarHasNoGeo(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2019, 4, 1, 3, 0, 0, 0, time.UTC)
	jpeg := testsupport.JPEG{Latitude: 35.68, Longitude: 139.76}.Bytes()
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "Tokyo/tower.jpg", Body: jpeg},
		testsupport.ArchiveEntry{Name: photos + "Tokyo/tower.jpg.json", Body: testsupport.Sidecar{Title: "tower.jpg", Taken: taken}.JSON()},
	)

	uploader := newFakeUploader()
	_, err := New(defaultOptions(t), uploader).Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)

	photo := uploader.byName(t, "tower.jpg")
	assert.Equal(t, "2019-04-01T12:00:00+09:00", photo.req.FileCreatedAt.Format(time.RFC3339))
	_, err = exif.Rewrite(io.Discard, bytes.NewReader(photo.data), func(doc *exif.Document) error {
		got, zoned, ok := doc.CaptureTime()
		assert.True(t, ok)
		assert.True(t, zoned)
		assert.True(t, got.Equal(taken))
		_, offset := got.Zone()
		assert.Equal(t, 9*3600, offset)
		return nil
	})
	require.NoError(t, err)
}

func TestRunReportsSkippedExtensions(t *testing.T) {
	dir := t.TempDir()
	archive := testsupport.WriteArchive(t, dir, "takeout.tgz",
		testsupport.ArchiveEntry{Name: photos + "Clips/MVI_0001.THM", Body: []byte("thumb")},
	)

	uploader := newFakeUploader()
	im := New(defaultOptions(t), uploader)
	stats, err := im.Run(context.Background(), openArchives(t, archive))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedUnsupported)
	assert.Equal(t, 0, stats.Ignored)
	assert.Empty(t, uploader.uploads)
	assert.Equal(t, report.StateUnsupported, rowsByFile(im.Report())["MVI_0001.THM"].State)
}
