package main

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"immich-takeout/internal/importer"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderSummary prints the run counters, leaving out rows that stayed at zero
// except the headline ones.
func renderSummary(stats importer.Stats, dryRun bool) string {
	type line struct {
		label  string
		value  int
		always bool
	}
	lines := []line{
		{"Archives", stats.Archives, true},
		{"Sidecars indexed", stats.Sidecars, true},
		{"Media entries", stats.Media, true},
		{"Uploaded", stats.Uploaded, !dryRun},
		{"Would upload", stats.DryRun, dryRun},
		{"Duplicates on server", stats.Duplicates, false},
		{"Metadata updated", stats.MetadataUpdated, false},
		{"EXIF rewritten", stats.ExifRewritten, false},
		{"Skipped (partner sharing)", stats.SkippedPartner, false},
		{"Skipped (unsupported)", stats.SkippedUnsupported, false},
		{"Skipped (already uploaded)", stats.SkippedAlreadyUploaded, false},
		{"Media without sidecar", stats.DanglingFiles, true},
		{"Sidecars without media", stats.DanglingMetadata, true},
		{"Failed", stats.Failed, true},
	}
	rows := make([][]string, 0, len(lines)+1)
	for _, l := range lines {
		if l.value == 0 && !l.always {
			continue
		}
		rows = append(rows, []string{l.label, strconv.Itoa(l.value)})
	}
	rows = append(rows, []string{"Bytes read", humanize.Bytes(uint64(stats.Bytes))})
	return renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}
