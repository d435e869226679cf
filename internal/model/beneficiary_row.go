package model

import (
	"time"

	"github.com/google/uuid"
)

// ChronicConditions lists the SynPUF chronic-condition flag columns in file order.
// Values are 1 (condition present) or 2 (absent).
var ChronicConditions = []string{
	"sp_alzhdmta",
	"sp_chf",
	"sp_chrnkidn",
	"sp_cncr",
	"sp_copd",
	"sp_depressn",
	"sp_diabetes",
	"sp_ischmcht",
	"sp_osteoprs",
	"sp_ra_oa",
	"sp_strketia",
}

// BeneficiaryRow is one beneficiary-summary line as staged for import. A beneficiary
// appears once per summary year; the import folds them to one row per beneficiary.
type BeneficiaryRow struct {
	IngestBatchID   uuid.UUID
	SourceRowNumber int64
	SummaryYear     *int32

	BeneficiaryID string
	BirthDate     *time.Time
	DeathDate     *time.Time
	Sex           *string
	Race          *string
	ESRD          *string
	State         *string
	County        *string

	Chronic []*int16 // aligned with ChronicConditions
}

// BeneficiaryColumns returns the ordered column names for COPY into
// claims.stage_beneficiary_summary.
func BeneficiaryColumns() []string {
	cols := []string{
		"ingest_batch_id",
		"source_row_number",
		"summary_year",
		"desynpuf_id",
		"bene_birth_dt",
		"bene_death_dt",
		"bene_sex_ident_cd",
		"bene_race_cd",
		"bene_esrd_ind",
		"sp_state_code",
		"bene_county_cd",
	}
	return append(cols, ChronicConditions...)
}

// CopyValues returns the row values in the same order as BeneficiaryColumns().
func (r *BeneficiaryRow) CopyValues() []any {
	vals := []any{
		r.IngestBatchID,
		r.SourceRowNumber,
		r.SummaryYear,
		r.BeneficiaryID,
		r.BirthDate,
		r.DeathDate,
		r.Sex,
		r.Race,
		r.ESRD,
		r.State,
		r.County,
	}
	for i := range ChronicConditions {
		if i < len(r.Chronic) {
			vals = append(vals, r.Chronic[i])
		} else {
			vals = append(vals, nil)
		}
	}
	return vals
}
