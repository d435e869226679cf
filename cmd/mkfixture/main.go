// mkfixture cuts a small representative data directory out of a full DE-SynPUF download.
// Two-pass: first scans every claim to find beneficiaries with interesting stay patterns,
// then writes their claims, summaries and the ICD rows they touch.
// Usage: go run ./cmd/mkfixture --in data --out testdata/sample --benes 50
package main

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gyeh/readmitstats/internal/extract"
	"github.com/gyeh/readmitstats/internal/ingest"
	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

type stay struct {
	admit     *time.Time
	discharge *time.Time
	segment   string
	dx        string
}

type bucket struct {
	name  string
	benes []string
	want  int
}

func main() {
	in := flag.String("in", "data", "full data directory")
	out := flag.String("out", "testdata/sample", "output data directory")
	maxBenes := flag.Int("benes", 50, "max beneficiaries to keep")
	checkOnly := flag.Bool("check", false, "only print stats, don't write")
	flag.Parse()

	claimsSrc, _ := model.SourceByName("claims")
	beneSrc, _ := model.SourceByName("beneficiaries")

	claimInputs, err := extract.CSVInputs(filepath.Join(*in, claimsSrc.Dir), claimsSrc.Archive)
	if err != nil || len(claimInputs) == 0 {
		die("no claims input in %s: %v", filepath.Join(*in, claimsSrc.Dir), err)
	}

	// Pass 1: read ALL claims, grouped by beneficiary.
	stays := make(map[string][]stay)
	var totalRead int
	for _, input := range claimInputs {
		err := eachRecord(input, func(r *extract.CSVReader) {
			totalRead++
			id := strings.TrimSpace(r.Get("DESYNPUF_ID"))
			if id == "" {
				return
			}
			stays[id] = append(stays[id], stay{
				admit:     normalize.ParseDate(r.Get("CLM_ADMSN_DT")),
				discharge: normalize.ParseDate(r.Get("NCH_BENE_DSCHRG_DT")),
				segment:   strings.TrimSpace(r.Get("SEGMENT")),
				dx:        normalize.Code(r.Get("ICD9_DGNS_CD_1")),
			})
		})
		if err != nil {
			die("read %s: %v", input.Name, err)
		}
	}
	fmt.Printf("Scanned %d claims for %d beneficiaries\n", totalRead, len(stays))

	buckets := []*bucket{
		{name: "readmitted", want: *maxBenes * 4 / 10},
		{name: "multi_segment", want: *maxBenes / 10},
		{name: "open_stay", want: *maxBenes / 10},
		{name: "general", want: *maxBenes},
	}
	bucketMap := make(map[string]*bucket)
	for _, b := range buckets {
		bucketMap[b.name] = b
	}

	ids := make([]string, 0, len(stays))
	for id := range stays {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b := bucketMap[trait(stays[id])]
		if len(b.benes) < b.want {
			b.benes = append(b.benes, id)
		}
	}

	// Merge buckets in priority order
	selected := make(map[string]bool)
	for _, b := range buckets {
		for _, id := range b.benes {
			if len(selected) >= *maxBenes {
				break
			}
			selected[id] = true
		}
		fmt.Printf("  %-14s %d candidates\n", b.name, len(b.benes))
	}
	if *checkOnly {
		fmt.Printf("Would keep %d beneficiaries\n", len(selected))
		return
	}

	dx := make(map[string]bool)
	for id := range selected {
		for _, s := range stays[id] {
			if s.dx != "" {
				dx[s.dx] = true
			}
		}
	}

	// Pass 2: write the sample.
	if err := os.MkdirAll(*out, 0755); err != nil {
		die("create output: %v", err)
	}
	claimsKept := writeClaims(claimInputs, filepath.Join(*out, claimsSrc.Dir, claimsSrc.Archive), selected)

	beneInputs, err := extract.CSVInputs(filepath.Join(*in, beneSrc.Dir), beneSrc.Archive)
	if err != nil {
		die("list beneficiary input: %v", err)
	}
	benesKept := 0
	for _, input := range beneInputs {
		benesKept += writeSummaries(input, filepath.Join(*out, beneSrc.Dir, entryName(input)), selected)
	}

	copyFile(filepath.Join(*in, "state", "state.csv"), filepath.Join(*out, "state", "state.csv"))
	xwalk, descs := writeICD(filepath.Join(*in, "icd"), filepath.Join(*out, "icd"), dx)

	fmt.Printf("Wrote %d beneficiaries to %s\n", len(selected), *out)
	fmt.Printf("  %-14s %d\n", "claims", claimsKept)
	fmt.Printf("  %-14s %d\n", "summaries", benesKept)
	fmt.Printf("  %-14s %d\n", "crosswalk", xwalk)
	fmt.Printf("  %-14s %d\n", "descriptions", descs)
}

// trait names the most useful bucket a beneficiary's stays fall into.
func trait(ss []stay) string {
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].admit == nil || ss[j].admit == nil {
			return ss[j].admit == nil && ss[i].admit != nil
		}
		return ss[i].admit.Before(*ss[j].admit)
	})
	for i := 1; i < len(ss); i++ {
		prev, cur := ss[i-1], ss[i]
		if prev.discharge != nil && cur.admit != nil && normalize.DaysBetween(*prev.discharge, *cur.admit) <= 30 {
			return "readmitted"
		}
	}
	for _, s := range ss {
		if s.segment != "" && s.segment != "1" {
			return "multi_segment"
		}
	}
	for _, s := range ss {
		if s.discharge == nil {
			return "open_stay"
		}
	}
	return "general"
}

func eachRecord(input extract.Input, fn func(*extract.CSVReader)) error {
	rc, err := input.Open()
	if err != nil {
		return err
	}
	r, err := extract.NewCSVReader(rc)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(r)
	}
}

func writeClaims(inputs []extract.Input, path string, selected map[string]bool) int {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		die("create %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		die("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entry, err := zw.Create("inpatient_claims_sample.csv")
	if err != nil {
		die("create zip entry: %v", err)
	}
	w := csv.NewWriter(entry)

	kept := 0
	wroteHeader := false
	for _, input := range inputs {
		err := eachRecord(input, func(r *extract.CSVReader) {
			if !wroteHeader {
				_ = w.Write(r.Header())
				wroteHeader = true
			}
			if selected[strings.TrimSpace(r.Get("DESYNPUF_ID"))] {
				_ = w.Write(r.Record())
				kept++
			}
		})
		if err != nil {
			die("read %s: %v", input.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		die("write claims: %v", err)
	}
	if err := zw.Close(); err != nil {
		die("close zip: %v", err)
	}
	return kept
}

func writeSummaries(input extract.Input, path string, selected map[string]bool) int {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		die("create %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		die("create %s: %v", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	kept := 0
	wroteHeader := false
	err = eachRecord(input, func(r *extract.CSVReader) {
		if !wroteHeader {
			_ = w.Write(r.Header())
			wroteHeader = true
		}
		if selected[strings.TrimSpace(r.Get("DESYNPUF_ID"))] {
			_ = w.Write(r.Record())
			kept++
		}
	})
	if err != nil {
		die("read %s: %v", input.Name, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		die("write %s: %v", path, err)
	}
	return kept
}

// writeICD keeps the crosswalk rows for the sampled primary diagnoses and the
// descriptions of the ICD-10 codes they map to.
func writeICD(inDir, outDir string, dx map[string]bool) (xwalk, descs int) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		die("create %s: %v", outDir, err)
	}

	src, err := os.Open(filepath.Join(inDir, ingest.CrosswalkFile))
	if err != nil {
		die("open crosswalk: %v", err)
	}
	defer src.Close()
	dst := create(filepath.Join(outDir, ingest.CrosswalkFile))
	defer dst.Close()

	icd10 := make(map[string]bool)
	err = extract.ReadCrosswalk(src, func(row model.CrosswalkRow) error {
		if !dx[row.ICD9] {
			return nil
		}
		icd10[row.ICD10] = true
		xwalk++
		_, err := fmt.Fprintf(dst, "%-5s %-7s 00000\n", row.ICD9, row.ICD10)
		return err
	})
	if err != nil {
		die("crosswalk: %v", err)
	}

	paths, _ := filepath.Glob(filepath.Join(inDir, ingest.DescriptionsPattern))
	for _, p := range paths {
		src, err := os.Open(p)
		if err != nil {
			die("open %s: %v", p, err)
		}
		dst := create(filepath.Join(outDir, filepath.Base(p)))
		err = extract.ReadDescriptions(src, func(d model.DiagnosisDescription) error {
			if !icd10[d.Code] {
				return nil
			}
			descs++
			_, err := fmt.Fprintf(dst, "%-7s %s\n", d.Code, d.Description)
			return err
		})
		src.Close()
		dst.Close()
		if err != nil {
			die("descriptions %s: %v", p, err)
		}
	}
	return xwalk, descs
}

func copyFile(from, to string) {
	src, err := os.Open(from)
	if err != nil {
		die("open %s: %v", from, err)
	}
	defer src.Close()
	dst := create(to)
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		die("copy %s: %v", from, err)
	}
}

func create(path string) *os.File {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		die("create %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		die("create %s: %v", path, err)
	}
	return f
}

// entryName strips the "archive.zip:" prefix of archive entries.
func entryName(input extract.Input) string {
	if i := strings.LastIndex(input.Name, ":"); i >= 0 {
		return filepath.Base(input.Name[i+1:])
	}
	return filepath.Base(input.Name)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
