package scope

import "strings"

const promptHead = `You are helping write SQL that selects the Medicare inpatient claims linked to a condition the user describes.

The claims live in table INPATIENT_CLAIMS_ICD10:
CREATE TABLE INPATIENT_CLAIMS_ICD10(
  DESYNPUF_ID VARCHAR,        -- beneficiary id
  CLM_ID VARCHAR,             -- claim id
  CLM_FROM_DT DATE,           -- claim start date
  CLM_THRU_DT DATE,           -- claim end date
  CLM_PMT_AMT DECIMAL(10,2),  -- claim payment amount
  CLM_ADMSN_DT DATE,          -- inpatient admission date
  CLM_UTLZTN_DAY_CNT INTEGER, -- utilization day count
  NCH_BENE_DSCHRG_DT DATE,    -- inpatient discharge date
  CLM_DRG_CD VARCHAR,         -- diagnosis related group code
  ICD10_DGNS_CODE VARCHAR     -- primary ICD-10 diagnosis code
);
Values in ICD10_DGNS_CODE have no period marks.

Table ICD10_DIAG_DESC(ICD10_CM_CODE VARCHAR, DESCRIPTION VARCHAR) describes every ICD-10-CM code,
also without period marks. Use it as a reference only and do not include it in the query.

The user's condition is:
`

const promptTail = `

Write one SQL query that selects all claims for that condition. Requirements:
1) Filter only on ICD10_DGNS_CODE, using LIKE 'X99%' prefix patterns, = or IN, combined with OR.
2) Respond with SQL only, no comments.
3) Respond exactly in this format:
$$$
SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE ...
$$$
`

// BuildPrompt wraps the user's condition text in the fixed instructions.
func BuildPrompt(condition string) string {
	var b strings.Builder
	b.Grow(len(promptHead) + len(condition) + len(promptTail))
	b.WriteString(promptHead)
	b.WriteString(strings.TrimSpace(condition))
	b.WriteString(promptTail)
	return b.String()
}
