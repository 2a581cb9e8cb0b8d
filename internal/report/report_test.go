package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	r := New()
	r.Add(Row{File: "b.jpg", ArchiveFile: "t1.tgz/b.jpg", State: StateUploaded, AssetID: "a2"})
	r.Add(Row{File: "a.jpg", ArchiveMetadata: "t2.tgz/a.jpg.json", ArchiveFile: "t1.tgz/a.jpg", State: StateDuplicate, PhotoTakenTime: "2020-01-01T00:00:00Z"})
	r.Add(Row{File: "c.json", ArchiveMetadata: "t1.tgz/c.json", State: StateDanglingMeta})
	return r
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Encode(&buf, "csv"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "a.jpg", records[1][0])
	assert.Equal(t, "duplicate", records[1][3])
	assert.Equal(t, "b.jpg", records[2][0])
	assert.Equal(t, "c.json", records[3][0])
}

func TestEncodeJSONAndYAML(t *testing.T) {
	var jsonBuf bytes.Buffer
	require.NoError(t, sampleReport().Encode(&jsonBuf, "JSON"))
	var fromJSON []Row
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))
	require.Len(t, fromJSON, 3)
	assert.Equal(t, StateDuplicate, fromJSON[0].State)

	var yamlBuf bytes.Buffer
	require.NoError(t, sampleReport().Encode(&yamlBuf, "yaml"))
	var fromYAML []Row
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	assert.Equal(t, fromJSON, fromYAML)
}

func TestEncodeEmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Encode(&buf, "json"))
	assert.Equal(t, "[]\n", buf.String())
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	_, err := ParseFormat("xml")
	assert.Error(t, err)
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, sampleReport().WriteFile(path, "csv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file,archive_metadata,archive_file,state")
	assert.NotContains(t, string(data), "stale")
}

func TestCounts(t *testing.T) {
	counts := sampleReport().Counts()
	assert.Equal(t, 1, counts[StateUploaded])
	assert.Equal(t, 1, counts[StateDuplicate])
	assert.Equal(t, 1, counts[StateDanglingMeta])
	assert.Equal(t, 0, counts[StateFailed])
}
