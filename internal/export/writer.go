package export

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/readmitstats/internal/model"
)

// WriteFile writes buckets to a new Parquet file at path, replacing any
// existing file.
func WriteFile(path, runID string, buckets []model.RateBucket) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	w := parquet.NewGenericWriter[RateRow](f)
	rows := make([]RateRow, len(buckets))
	for i, b := range buckets {
		rows[i] = FromBucket(b, runID)
	}
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}
