package model

import "time"

// ImportSummary captures metrics from one import run across all sources.
type ImportSummary struct {
	DataDir        string
	IngestBatchID  string
	FilesImported  int
	FilesSkipped   int
	RowsByTable    map[string]int64
	RowsRejected   int64
	DurationByStep map[string]time.Duration
	DurationTotal  time.Duration
}
