package extract

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

// Column bounds of the fixed-width reference files.
const (
	gemICD9End  = 5
	gemICD10End = 14
	descCodeEnd = 7
	descEnd     = 187
)

// field returns line[from:to] trimmed, clipped to the line length.
func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return strings.TrimSpace(line[from:to])
}

func scanLines(r io.Reader, fn func(lineNum int, line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", n+1, err)
	}
	return nil
}

// ReadCrosswalk reads a General Equivalence Mapping file of ICD-9 to ICD-10
// diagnosis codes and calls fn for every mapping. Lines without both codes are
// skipped.
func ReadCrosswalk(r io.Reader, fn func(model.CrosswalkRow) error) error {
	return scanLines(r, func(_ int, line string) error {
		row := model.CrosswalkRow{
			ICD9:  normalize.Code(field(line, 0, gemICD9End)),
			ICD10: normalize.Code(field(line, gemICD9End, gemICD10End)),
		}
		if row.ICD9 == "" || row.ICD10 == "" {
			return nil
		}
		return fn(row)
	})
}

// ReadDescriptions reads an ICD-10-CM code description file and calls fn for
// every code.
func ReadDescriptions(r io.Reader, fn func(model.DiagnosisDescription) error) error {
	return scanLines(r, func(_ int, line string) error {
		d := model.DiagnosisDescription{
			Code:        normalize.Code(field(line, 0, descCodeEnd)),
			Description: field(line, descCodeEnd, descEnd),
		}
		if d.Code == "" {
			return nil
		}
		return fn(d)
	})
}
