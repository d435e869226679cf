// Package export writes rate buckets to Parquet and reads them back.
package export

import "github.com/gyeh/readmitstats/internal/model"

// RateRow is the flat Parquet layout of one model.RateBucket. Dimensions the
// grouping does not use are written as zero values; rate is null when the group
// had no admissions.
type RateRow struct {
	Year            int32    `parquet:"year"`
	State           string   `parquet:"sp_state_code"`
	Sex             string   `parquet:"bene_sex_ident_cd"`
	Readmissions    int64    `parquet:"readmissions"`
	TotalAdmissions int64    `parquet:"total_admissions"`
	Rate            *float64 `parquet:"readmission_rate,optional"`
	RunID           string   `parquet:"run_id"`
}

// FromBucket converts b to a row tagged with runID.
func FromBucket(b model.RateBucket, runID string) RateRow {
	return RateRow{
		Year:            int32(b.Key.Year),
		State:           b.Key.State,
		Sex:             b.Key.Sex,
		Readmissions:    b.Readmissions,
		TotalAdmissions: b.TotalAdmissions,
		Rate:            b.Rate,
		RunID:           runID,
	}
}

// Bucket converts the row back to a model.RateBucket.
func (r RateRow) Bucket() model.RateBucket {
	return model.RateBucket{
		Key:             model.GroupKey{Year: int(r.Year), State: r.State, Sex: r.Sex},
		Readmissions:    r.Readmissions,
		TotalAdmissions: r.TotalAdmissions,
		Rate:            r.Rate,
	}
}
