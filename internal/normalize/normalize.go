package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gyeh/readmitstats/internal/model"
)

// Fields gives access to one CSV record by (case-insensitive) header name.
// Missing columns read as "".
type Fields interface {
	Get(name string) string
}

// ToClaimRow converts one inpatient-claims CSV record into a ClaimRow.
// Records without a beneficiary or claim id are rejected.
func ToClaimRow(f Fields, batchID uuid.UUID) (*model.ClaimRow, error) {
	r := &model.ClaimRow{
		IngestBatchID: batchID,
		BeneficiaryID: strings.TrimSpace(f.Get("DESYNPUF_ID")),
		ClaimID:       strings.TrimSpace(f.Get("CLM_ID")),
	}
	if r.BeneficiaryID == "" || r.ClaimID == "" {
		return nil, fmt.Errorf("missing DESYNPUF_ID or CLM_ID")
	}

	r.Segment = optInt32(f.Get("SEGMENT"))
	r.FromDate = ParseDate(f.Get("CLM_FROM_DT"))
	r.ThruDate = ParseDate(f.Get("CLM_THRU_DT"))
	r.AdmissionDate = ParseDate(f.Get("CLM_ADMSN_DT"))
	r.DischargeDate = ParseDate(f.Get("NCH_BENE_DSCHRG_DT"))
	r.ProviderNumber = optStr(f.Get("PRVDR_NUM"))
	r.PaymentCents = DollarsToCents(ParseDollars(f.Get("CLM_PMT_AMT")))
	r.UtilizationDays = optInt32(f.Get("CLM_UTLZTN_DAY_CNT"))
	r.DRGCode = NormalizeCode(optStr(f.Get("CLM_DRG_CD")))
	r.AdmittingDiagnosis = NormalizeCode(optStr(f.Get("ADMTNG_ICD9_DGNS_CD")))

	for i := range r.Diagnoses {
		r.Diagnoses[i] = NormalizeCode(optStr(f.Get(fmt.Sprintf("ICD9_DGNS_CD_%d", i+1))))
	}
	for i := range r.Procedures {
		r.Procedures[i] = NormalizeCode(optStr(f.Get(fmt.Sprintf("ICD9_PRCDR_CD_%d", i+1))))
	}
	return r, nil
}

// ToBeneficiaryRow converts one beneficiary-summary CSV record. summaryYear is
// taken from the source file name and may be nil.
func ToBeneficiaryRow(f Fields, batchID uuid.UUID, rowNum int64, summaryYear *int32) (*model.BeneficiaryRow, error) {
	r := &model.BeneficiaryRow{
		IngestBatchID:   batchID,
		SourceRowNumber: rowNum,
		SummaryYear:     summaryYear,
		BeneficiaryID:   strings.TrimSpace(f.Get("DESYNPUF_ID")),
	}
	if r.BeneficiaryID == "" {
		return nil, fmt.Errorf("missing DESYNPUF_ID")
	}

	r.BirthDate = ParseDate(f.Get("BENE_BIRTH_DT"))
	r.DeathDate = ParseDate(f.Get("BENE_DEATH_DT"))
	r.Sex = optStr(f.Get("BENE_SEX_IDENT_CD"))
	r.Race = optStr(f.Get("BENE_RACE_CD"))
	r.ESRD = optStr(f.Get("BENE_ESRD_IND"))
	r.State = StateCode(f.Get("SP_STATE_CODE"))
	r.County = optStr(f.Get("BENE_COUNTY_CD"))

	r.Chronic = make([]*int16, len(model.ChronicConditions))
	for i, col := range model.ChronicConditions {
		r.Chronic[i] = optInt16(f.Get(strings.ToUpper(col)))
	}
	return r, nil
}

// StateCode left-pads SSA state codes to two digits; CSV auto-typing often drops
// the leading zero ("5" for California).
func StateCode(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) == 1 {
		s = "0" + s
	}
	return &s
}

func optStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optInt32(s string) *int32 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil
	}
	v := int32(n)
	return &v
}

func optInt16(s string) *int16 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return nil
	}
	v := int16(n)
	return &v
}
