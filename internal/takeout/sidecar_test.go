package takeout

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immich-takeout/internal/testsupport"
)

func TestParseSidecar(t *testing.T) {
	taken := time.Date(2018, 9, 23, 21, 42, 21, 0, time.UTC)
	data := testsupport.Sidecar{
		Title:       "  IMG_0001.jpg ",
		Description: "Skyline\n",
		Taken:       taken,
		Latitude:    40.7128,
		Longitude:   -74.006,
		Altitude:    10,
		Favorited:   true,
	}.JSON()

	s, err := ParseSidecar(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, "IMG_0001.jpg", s.Title)
	assert.Equal(t, "Skyline", s.Description)
	assert.True(t, s.Favorited)
	assert.False(t, s.PartnerShared())

	got, ok := s.TakenAt()
	require.True(t, ok)
	assert.True(t, got.Equal(taken))
	assert.Equal(t, time.UTC, got.Location())

	loc, ok := s.Location()
	require.True(t, ok)
	assert.InDelta(t, 40.7128, loc.Latitude, 1e-9)
	assert.InDelta(t, 10, loc.Altitude, 1e-9)
}

func TestSidecarLocationFallsBackToExifGeoData(t *testing.T) {
	doc := `{"title":"a.jpg","geoData":{"latitude":0,"longitude":0},"geoDataExif":{"latitude":51.5,"longitude":-0.12}}`
	s, err := ParseSidecar(strings.NewReader(doc))
	require.NoError(t, err)
	loc, ok := s.Location()
	require.True(t, ok)
	assert.InDelta(t, 51.5, loc.Latitude, 1e-9)

	s, err = ParseSidecar(strings.NewReader(`{"title":"a.jpg","geoData":{"latitude":0,"longitude":0}}`))
	require.NoError(t, err)
	_, ok = s.Location()
	assert.False(t, ok)
}

func TestSidecarTimestampForms(t *testing.T) {
	s, err := ParseSidecar(strings.NewReader(`{"photoTakenTime":{"timestamp":1545145531}}`))
	require.NoError(t, err)
	got, ok := s.TakenAt()
	require.True(t, ok)
	assert.Equal(t, int64(1545145531), got.Unix())

	s, err = ParseSidecar(strings.NewReader(`{"title":"x.jpg"}`))
	require.NoError(t, err)
	_, ok = s.TakenAt()
	assert.False(t, ok)

	_, err = ParseSidecar(strings.NewReader(`{"photoTakenTime":{"timestamp":"soon"}}`))
	assert.Error(t, err)
}

func TestSidecarPartnerShared(t *testing.T) {
	data := testsupport.Sidecar{Title: "p.jpg", PartnerShared: true}.JSON()
	s, err := ParseSidecar(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.True(t, s.PartnerShared())

	s, err = ParseSidecar(strings.NewReader(`{"googlePhotosOrigin":{"fromPartnerSharing":null}}`))
	require.NoError(t, err)
	assert.False(t, s.PartnerShared())

	var missing *Sidecar
	assert.False(t, missing.PartnerShared())
}
