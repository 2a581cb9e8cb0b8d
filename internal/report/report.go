package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// State is the outcome recorded for a file.
type State string

const (
	StateUploaded        State = "uploaded"
	StateDuplicate       State = "duplicate"
	StateDryRun          State = "dry-run"
	StatePartnerSharing  State = "skipped partner sharing"
	StateUnsupported     State = "skipped unsupported"
	StateAlreadyUploaded State = "skipped already uploaded"
	StateDanglingMeta    State = "dangling metadata"
	StateDanglingFile    State = "dangling file"
	StateFailed          State = "failed"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Row describes one archive entry.
type Row struct {
	File            string `json:"file" yaml:"file"`
	ArchiveMetadata string `json:"archive_metadata,omitempty" yaml:"archive_metadata,omitempty"`
	ArchiveFile     string `json:"archive_file,omitempty" yaml:"archive_file,omitempty"`
	State           State  `json:"state" yaml:"state"`
	PhotoTakenTime  string `json:"photo_taken_time,omitempty" yaml:"photo_taken_time,omitempty"`
	AssetID         string `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	Detail          string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

var csvHeader = []string{"file", "archive_metadata", "archive_file", "state", "photo_taken_time", "asset_id", "detail"}

func (r Row) record() []string {
	return []string{r.File, r.ArchiveMetadata, r.ArchiveFile, string(r.State), r.PhotoTakenTime, r.AssetID, r.Detail}
}

// Report collects rows during a run.
type Report struct {
	rows []Row
}

// New returns an empty report.
func New() *Report {
	return &Report{}
}

// Add appends a row.
func (r *Report) Add(row Row) {
	if r == nil {
		return
	}
	r.rows = append(r.rows, row)
}

// Rows returns the collected rows in insertion order.
func (r *Report) Rows() []Row {
	if r == nil {
		return nil
	}
	return append([]Row(nil), r.rows...)
}

// Counts tallies rows per state.
func (r *Report) Counts() map[State]int {
	counts := make(map[State]int)
	if r == nil {
		return counts
	}
	for _, row := range r.rows {
		counts[row.State]++
	}
	return counts
}

// ParseFormat validates a format name.
func ParseFormat(value string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(value)); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q (want csv, json or yaml)", value)
	}
}

// Encode writes the rows to w, sorted by file then state.
func (r *Report) Encode(w io.Writer, format string) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}
	rows := r.Rows()
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].File != rows[j].File {
			return rows[i].File < rows[j].File
		}
		return rows[i].State < rows[j].State
	})

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []Row{}
		}
		return enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write(row.record()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
}

// WriteFile encodes the report and atomically replaces path.
func (r *Report) WriteFile(path, format string) error {
	var buf bytes.Buffer
	if err := r.Encode(&buf, format); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
