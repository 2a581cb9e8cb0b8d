package importer

// Stats summarises an import run.
type Stats struct {
	Archives int
	Sidecars int
	Media    int
	Ignored  int

	Uploaded        int
	Duplicates      int
	DryRun          int
	MetadataUpdated int
	ExifRewritten   int
	Bytes           int64

	SkippedPartner         int
	SkippedUnsupported     int
	SkippedAlreadyUploaded int

	DanglingFiles    int
	DanglingMetadata int

	Failed int
}

// Skipped totals every deliberate skip.
func (s Stats) Skipped() int {
	return s.SkippedPartner + s.SkippedUnsupported + s.SkippedAlreadyUploaded
}
