package extract

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gyeh/readmitstats/internal/model"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func readAll(t *testing.T, in Input) [][2]string {
	t.Helper()
	rc, err := in.Open()
	if err != nil {
		t.Fatalf("open %s: %v", in.Name, err)
	}
	r, err := NewCSVReader(rc)
	if err != nil {
		t.Fatalf("reader %s: %v", in.Name, err)
	}
	defer r.Close()

	var out [][2]string
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, [2]string{r.Get("desynpuf_id"), r.Get("CLM_ID")})
	}
}

func TestCSVInputs_ArchiveThenLoose(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "inpatient.zip"), map[string]string{
		"b.csv":      "DESYNPUF_ID,CLM_ID\nB2,20\n",
		"a.csv":      "DESYNPUF_ID,CLM_ID\nB1,10\nB1,11\n",
		"readme.txt": "not a csv",
	})
	writeFile(t, filepath.Join(dir, "extra.csv"), "\ufeffDESYNPUF_ID,CLM_ID\nB3,30\n")

	inputs, err := CSVInputs(dir, "inpatient.zip")
	if err != nil {
		t.Fatalf("CSVInputs: %v", err)
	}
	var names []string
	for _, in := range inputs {
		names = append(names, in.Name)
	}
	if got := strings.Join(names, " "); got != "inpatient.zip:a.csv inpatient.zip:b.csv extra.csv" {
		t.Fatalf("inputs = %s", got)
	}
	if inputs[0].Path != inputs[1].Path {
		t.Error("archive entries should share the archive path")
	}

	rows := readAll(t, inputs[0])
	if len(rows) != 2 || rows[1] != [2]string{"B1", "11"} {
		t.Errorf("a.csv rows = %v", rows)
	}
	rows = readAll(t, inputs[2])
	if len(rows) != 1 || rows[0] != [2]string{"B3", "30"} {
		t.Errorf("BOM file rows = %v", rows)
	}
}

func TestCSVInputs_MissingDir(t *testing.T) {
	inputs, err := CSVInputs(filepath.Join(t.TempDir(), "nope"), "bene.zip")
	if err != nil {
		t.Fatalf("CSVInputs: %v", err)
	}
	if len(inputs) != 0 {
		t.Errorf("expected no inputs, got %d", len(inputs))
	}
}

func TestCSVReader_ShortRecordsAndMissingColumns(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("A,B,C\n1,\"x\"y\"\n"))
	r, err := NewCSVReader(rc)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if r.Get("a") != "1" {
		t.Errorf("A = %q", r.Get("a"))
	}
	if r.Get("C") != "" || r.Get("Z") != "" {
		t.Error("missing values should read as empty")
	}
	if !r.Has("b") || r.Has("z") {
		t.Error("Has mismatch")
	}
	if r.RowNum() != 2 {
		t.Errorf("RowNum = %d, want 2", r.RowNum())
	}
}

func TestReadCrosswalk(t *testing.T) {
	gem := "0010  A000     00000\n" +
		"0019  A009     00000\n" +
		"\n" +
		"25000 E119     00000\n" +
		"V5789 Z5189    10000\n"
	var rows []model.CrosswalkRow
	err := ReadCrosswalk(strings.NewReader(gem), func(r model.CrosswalkRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCrosswalk: %v", err)
	}
	want := []model.CrosswalkRow{
		{ICD9: "0010", ICD10: "A000"},
		{ICD9: "0019", ICD10: "A009"},
		{ICD9: "25000", ICD10: "E119"},
		{ICD9: "V5789", ICD10: "Z5189"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestReadDescriptions(t *testing.T) {
	body := "A000    Cholera due to Vibrio cholerae 01, biovar cholerae\r\n" +
		"E119    Type 2 diabetes mellitus without complications\r\n" +
		"S0000XAAbrasion of unspecified part of head, initial encounter\n"
	var got []model.DiagnosisDescription
	err := ReadDescriptions(strings.NewReader(body), func(d model.DiagnosisDescription) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadDescriptions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d descriptions", len(got))
	}
	if got[1].Code != "E119" || got[1].Description != "Type 2 diabetes mellitus without complications" {
		t.Errorf("E119 = %+v", got[1])
	}
	if got[2].Code != "S0000XA" || !strings.HasPrefix(got[2].Description, "Abrasion") {
		t.Errorf("7-char code = %+v", got[2])
	}

	stop := errors.New("stop")
	err = ReadDescriptions(strings.NewReader(body), func(model.DiagnosisDescription) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("callback error not propagated: %v", err)
	}
}

func TestSummaryYear(t *testing.T) {
	cases := map[string]int32{
		"DE1_0_2008_Beneficiary_Summary_File_Sample_1.csv": 2008,
		"bene.zip:DE1_0_2010_Beneficiary_Summary.csv":      2010,
		"/data/bene/2009.csv":                              2009,
	}
	for name, want := range cases {
		got := SummaryYear(name)
		if got == nil || *got != want {
			t.Errorf("SummaryYear(%q) = %v, want %d", name, got, want)
		}
	}
	if SummaryYear("beneficiaries.csv") != nil {
		t.Error("expected nil year")
	}
	if SummaryYear("sample_120081.csv") != nil {
		t.Error("digits inside a longer number are not a year")
	}
}
