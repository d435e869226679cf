package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Number of ICD-9 diagnosis and procedure columns in the inpatient extract.
const (
	ClaimDiagnosisColumns = 10
	ClaimProcedureColumns = 6
)

// ClaimRow is the normalized, DB-ready representation of one inpatient claim line
// from the DE-SynPUF extract. Payment amounts are stored as int64 cents.
type ClaimRow struct {
	IngestBatchID uuid.UUID

	BeneficiaryID string
	ClaimID       string
	Segment       *int32

	FromDate      *time.Time
	ThruDate      *time.Time
	AdmissionDate *time.Time
	DischargeDate *time.Time

	ProviderNumber  *string
	PaymentCents    *int64
	UtilizationDays *int32
	DRGCode         *string

	AdmittingDiagnosis *string
	Diagnoses          [ClaimDiagnosisColumns]*string
	Procedures         [ClaimProcedureColumns]*string
}

// ClaimColumns returns the ordered column names for COPY into claims.inpatient_claims.
func ClaimColumns() []string {
	cols := []string{
		"ingest_batch_id",
		"desynpuf_id",
		"clm_id",
		"segment",
		"clm_from_dt",
		"clm_thru_dt",
		"clm_admsn_dt",
		"nch_bene_dschrg_dt",
		"prvdr_num",
		"clm_pmt_amt_cents",
		"clm_utlztn_day_cnt",
		"clm_drg_cd",
		"admtng_icd9_dgns_cd",
	}
	for i := 1; i <= ClaimDiagnosisColumns; i++ {
		cols = append(cols, icd9Column("dgns", i))
	}
	for i := 1; i <= ClaimProcedureColumns; i++ {
		cols = append(cols, icd9Column("prcdr", i))
	}
	return cols
}

// CopyValues returns the row values in the same order as ClaimColumns(),
// suitable for pgx CopyFromSource.
func (r *ClaimRow) CopyValues() []any {
	vals := []any{
		r.IngestBatchID,
		r.BeneficiaryID,
		r.ClaimID,
		r.Segment,
		r.FromDate,
		r.ThruDate,
		r.AdmissionDate,
		r.DischargeDate,
		r.ProviderNumber,
		r.PaymentCents,
		r.UtilizationDays,
		r.DRGCode,
		r.AdmittingDiagnosis,
	}
	for _, d := range r.Diagnoses {
		vals = append(vals, d)
	}
	for _, p := range r.Procedures {
		vals = append(vals, p)
	}
	return vals
}

func icd9Column(kind string, n int) string {
	return "icd9_" + kind + "_cd_" + strconv.Itoa(n)
}
