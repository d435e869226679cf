package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mapFields map[string]string

func (m mapFields) Get(name string) string { return m[strings.ToUpper(name)] }

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20090120", "2009-01-20"},
		{"20090120.0", "2009-01-20"},
		{"2009-01-20", "2009-01-20"},
		{"01/20/2009", "2009-01-20"},
		{" ", ""},
		{"not a date", ""},
	}
	for _, c := range cases {
		got := ParseDate(c.in)
		if c.want == "" {
			if got != nil {
				t.Errorf("ParseDate(%q) = %v, want nil", c.in, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("ParseDate(%q) = nil, want %s", c.in, c.want)
		}
		if got.Format("2006-01-02") != c.want {
			t.Errorf("ParseDate(%q) = %s, want %s", c.in, got.Format("2006-01-02"), c.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("ParseDate(%q) location = %v, want UTC", c.in, got.Location())
		}
	}
}

func TestDaysBetween(t *testing.T) {
	a := *ParseDate("20090110")
	b := *ParseDate("20090120")
	if d := DaysBetween(a, b); d != 10 {
		t.Errorf("DaysBetween = %d, want 10", d)
	}
	if d := DaysBetween(b, a); d != -10 {
		t.Errorf("DaysBetween reversed = %d, want -10", d)
	}
	// Crosses a leap day.
	if d := DaysBetween(*ParseDate("20080225"), *ParseDate("20080301")); d != 5 {
		t.Errorf("DaysBetween over leap day = %d, want 5", d)
	}
}

func TestCode(t *testing.T) {
	cases := map[string]string{
		" v42.0 ": "V420",
		"4019":    "4019",
		"E11.9":   "E119",
		"  ":      "",
		"--":      "",
	}
	for in, want := range cases {
		if got := Code(in); got != want {
			t.Errorf("Code(%q) = %q, want %q", in, got, want)
		}
	}
	if NormalizeCode(nil) != nil {
		t.Error("NormalizeCode(nil) should be nil")
	}
	blank := " . "
	if NormalizeCode(&blank) != nil {
		t.Error("NormalizeCode of punctuation-only input should be nil")
	}
}

func TestToClaimRow(t *testing.T) {
	batch := uuid.New()
	f := mapFields{
		"DESYNPUF_ID":        "00013D2EFD8E45D1",
		"CLM_ID":             "196661176988405",
		"SEGMENT":            "1",
		"CLM_ADMSN_DT":       "20100312",
		"NCH_BENE_DSCHRG_DT": "20100313",
		"CLM_PMT_AMT":        "4000.00",
		"ICD9_DGNS_CD_1":     "4019",
		"ICD9_DGNS_CD_2":     "v642",
		"ICD9_PRCDR_CD_1":    "",
	}

	r, err := ToClaimRow(f, batch)
	if err != nil {
		t.Fatalf("ToClaimRow: %v", err)
	}
	if r.IngestBatchID != batch {
		t.Errorf("batch id not propagated")
	}
	if r.PaymentCents == nil || *r.PaymentCents != 400000 {
		t.Errorf("PaymentCents = %v, want 400000", r.PaymentCents)
	}
	if r.Diagnoses[1] == nil || *r.Diagnoses[1] != "V642" {
		t.Errorf("diagnosis 2 = %v, want V642", r.Diagnoses[1])
	}
	if r.Procedures[0] != nil {
		t.Errorf("blank procedure should be nil, got %q", *r.Procedures[0])
	}
	if r.DischargeDate == nil || r.DischargeDate.Format("2006-01-02") != "2010-03-13" {
		t.Errorf("discharge date = %v", r.DischargeDate)
	}
	if len(r.CopyValues()) != 13+10+6 {
		t.Errorf("CopyValues length = %d", len(r.CopyValues()))
	}

	if _, err := ToClaimRow(mapFields{"CLM_ID": "1"}, batch); err == nil {
		t.Error("expected error for missing beneficiary id")
	}
}

func TestToBeneficiaryRow(t *testing.T) {
	year := int32(2009)
	f := mapFields{
		"DESYNPUF_ID":       "00013D2EFD8E45D1",
		"BENE_BIRTH_DT":     "19230501",
		"BENE_SEX_IDENT_CD": "2",
		"SP_STATE_CODE":     "5",
		"SP_CHF":            "1",
	}
	r, err := ToBeneficiaryRow(f, uuid.New(), 7, &year)
	if err != nil {
		t.Fatalf("ToBeneficiaryRow: %v", err)
	}
	if r.State == nil || *r.State != "05" {
		t.Errorf("State = %v, want 05", r.State)
	}
	if r.Chronic[1] == nil || *r.Chronic[1] != 1 {
		t.Errorf("SP_CHF = %v, want 1", r.Chronic[1])
	}
	if r.Chronic[0] != nil {
		t.Errorf("missing SP_ALZHDMTA should be nil")
	}
	if len(r.CopyValues()) != 11+11 {
		t.Errorf("CopyValues length = %d", len(r.CopyValues()))
	}
}
