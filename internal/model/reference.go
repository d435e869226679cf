package model

// State is one row of the SSA state-code reference table.
type State struct {
	Name string
	Code string // SSA state code as used by SP_STATE_CODE, e.g. "05"
	Abbr string // USPS abbreviation, e.g. "CA"
}

// Gender is one row of the sex-code reference table.
type Gender struct {
	Code  int16
	Label string
}

// Genders is the fixed sex-code table used by the SynPUF extracts.
var Genders = []Gender{
	{Code: 1, Label: "Male"},
	{Code: 2, Label: "Female"},
}

// CrosswalkRow maps an ICD-9 diagnosis code to one ICD-10-CM candidate (GEM file).
type CrosswalkRow struct {
	ICD9  string
	ICD10 string
}

// DiagnosisDescription is one ICD-10-CM code and its long description.
type DiagnosisDescription struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
