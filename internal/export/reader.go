package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/readmitstats/internal/model"
)

var rateColumns = []string{
	"year",
	"sp_state_code",
	"bene_sex_ident_cd",
	"readmissions",
	"total_admissions",
	"readmission_rate",
	"run_id",
}

// ReadFile returns every row of a rates file written by WriteFile. Files
// lacking a rate column are rejected.
func ReadFile(path string) ([]RateRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	have := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		have[field.Name()] = true
	}
	var missing []string
	for _, col := range rateColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing rate columns: %s", path, strings.Join(missing, ", "))
	}

	r := parquet.NewGenericReader[RateRow](pf)
	defer r.Close()
	rows := make([]RateRow, r.NumRows())
	n := 0
	for n < len(rows) {
		m, err := r.Read(rows[n:])
		n += m
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return rows[:n], nil
}

// Verify reads path back and checks that it holds exactly buckets, in order,
// tagged with runID.
func Verify(path, runID string, buckets []model.RateBucket) error {
	rows, err := ReadFile(path)
	if err != nil {
		return err
	}
	if len(rows) != len(buckets) {
		return fmt.Errorf("%s: %d rows, want %d", path, len(rows), len(buckets))
	}
	for i, row := range rows {
		got, want := row.Bucket(), buckets[i]
		if row.RunID != runID || got.Key != want.Key ||
			got.Readmissions != want.Readmissions || got.TotalAdmissions != want.TotalAdmissions {
			return fmt.Errorf("%s: row %d is %+v (run %s), want %+v (run %s)", path, i, got, row.RunID, want, runID)
		}
	}
	return nil
}
