package model

import "time"

// Diagnosis and procedure slots considered by readmission classification.
const (
	DiagnosisSlots = 9
	ProcedureSlots = 6
)

// Demographics are the beneficiary attributes used for grouping. Both fields are
// empty when the admission has no matching beneficiary summary.
type Demographics struct {
	State string
	Sex   string
}

// Admission is one inpatient claim as read back for analysis. Dates are nil when
// the extract left them blank; such admissions cannot be sequenced.
type Admission struct {
	BeneficiaryID string
	ClaimID       string
	AdmissionDate *time.Time
	DischargeDate *time.Time
	Diagnoses     [DiagnosisSlots]string // normalized ICD-9, "" when absent
	Procedures    [ProcedureSlots]string
	Demographics
}

// PrimaryDiagnosis returns the first diagnosis code.
func (a *Admission) PrimaryDiagnosis() string { return a.Diagnoses[0] }

// PrimaryProcedure returns the first procedure code.
func (a *Admission) PrimaryProcedure() string { return a.Procedures[0] }

// Sequenceable reports whether both dates are present.
func (a *Admission) Sequenceable() bool {
	return a.AdmissionDate != nil && a.DischargeDate != nil
}

// ReadmissionEvent is the classification outcome for one sequenced admission.
// It is derived per run and never stored as authoritative state.
type ReadmissionEvent struct {
	BeneficiaryID         string
	ClaimID               string
	AdmissionDate         time.Time
	DischargeDate         time.Time
	PreviousDischargeDate *time.Time
	PreviousDiagnosis     string
	Qualifies             bool
	Exclusion             string // rule that prevented qualification, "" when none applied
	Demographics
}

// Year returns the admission year.
func (e *ReadmissionEvent) Year() int { return e.AdmissionDate.Year() }
