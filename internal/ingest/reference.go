package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/extract"
	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

// ImportReference replaces the state and gender reference tables.
func ImportReference(ctx context.Context, tx pgx.Tx, log zerolog.Logger, pf *PreflightResult, counts *LoadCounts) error {
	start := time.Now()

	var states []model.State
	for _, in := range pf.Inputs {
		got, err := readStates(in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		counts.PerFile[in.Path] += int64(len(got))
		states = append(states, got...)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM claims.state"); err != nil {
		return fmt.Errorf("clear states: %w", err)
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"claims", "state"},
		[]string{"sp_state_code", "state_name", "state_abbr"},
		pgx.CopyFromSlice(len(states), func(i int) ([]any, error) {
			s := states[i]
			return []any{s.Code, s.Name, s.Abbr}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy states: %w", err)
	}
	counts.Rows["claims.state"] = n

	if _, err := tx.Exec(ctx, "DELETE FROM claims.gender"); err != nil {
		return fmt.Errorf("clear genders: %w", err)
	}
	g, err := tx.CopyFrom(ctx,
		pgx.Identifier{"claims", "gender"},
		[]string{"gender_code", "gender_desc"},
		pgx.CopyFromSlice(len(model.Genders), func(i int) ([]any, error) {
			return []any{model.Genders[i].Code, model.Genders[i].Label}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy genders: %w", err)
	}
	counts.Rows["claims.gender"] = g

	log.Info().
		Int64("states", n).
		Int64("genders", g).
		Dur("duration", time.Since(start)).
		Msg("reference tables loaded")
	return nil
}

// readStates reads a state.csv with state_name, sp_state_code and state_abbr
// columns. Rows without a code are skipped; a repeated code is an error.
func readStates(in extract.Input) ([]model.State, error) {
	rc, err := in.Open()
	if err != nil {
		return nil, err
	}
	r, err := extract.NewCSVReader(rc)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, col := range []string{"state_name", "sp_state_code", "state_abbr"} {
		if !r.Has(col) {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	seen := make(map[string]bool)
	var out []model.State
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		code := normalize.StateCode(r.Get("sp_state_code"))
		if code == nil {
			continue
		}
		if seen[*code] {
			return nil, fmt.Errorf("row %d: duplicate state code %s", r.RowNum(), *code)
		}
		seen[*code] = true
		out = append(out, model.State{
			Code: *code,
			Name: strings.TrimSpace(r.Get("state_name")),
			Abbr: strings.ToUpper(strings.TrimSpace(r.Get("state_abbr"))),
		})
	}
}

// ImportICD replaces the ICD-9 to ICD-10 crosswalk and the ICD-10 description
// table. When several description files list a code, the first one wins.
func ImportICD(ctx context.Context, tx pgx.Tx, log zerolog.Logger, pf *PreflightResult, counts *LoadCounts) error {
	start := time.Now()

	var xwalk []model.CrosswalkRow
	err := readFixedWidth(pf.CrosswalkPath, counts, func(r io.Reader) error {
		return extract.ReadCrosswalk(r, func(row model.CrosswalkRow) error {
			xwalk = append(xwalk, row)
			return nil
		})
	})
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var descs []model.DiagnosisDescription
	for _, path := range pf.DescriptionPaths {
		err := readFixedWidth(path, counts, func(r io.Reader) error {
			return extract.ReadDescriptions(r, func(d model.DiagnosisDescription) error {
				if !seen[d.Code] {
					seen[d.Code] = true
					descs = append(descs, d)
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM claims.icd_diag_xwalk"); err != nil {
		return fmt.Errorf("clear crosswalk: %w", err)
	}
	x, err := tx.CopyFrom(ctx,
		pgx.Identifier{"claims", "icd_diag_xwalk"},
		[]string{"icd9", "icd10"},
		pgx.CopyFromSlice(len(xwalk), func(i int) ([]any, error) {
			return []any{xwalk[i].ICD9, xwalk[i].ICD10}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy crosswalk: %w", err)
	}
	counts.Rows["claims.icd_diag_xwalk"] = x

	if _, err := tx.Exec(ctx, "DELETE FROM claims.icd10_diag_desc"); err != nil {
		return fmt.Errorf("clear descriptions: %w", err)
	}
	d, err := tx.CopyFrom(ctx,
		pgx.Identifier{"claims", "icd10_diag_desc"},
		[]string{"icd10_cm_code", "description"},
		pgx.CopyFromSlice(len(descs), func(i int) ([]any, error) {
			return []any{descs[i].Code, descs[i].Description}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy descriptions: %w", err)
	}
	counts.Rows["claims.icd10_diag_desc"] = d

	log.Info().
		Int64("crosswalk", x).
		Int64("descriptions", d).
		Dur("duration", time.Since(start)).
		Msg("icd reference loaded")
	return nil
}

func readFixedWidth(path string, counts *LoadCounts, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cr := &countingReader{r: f}
	if err := read(cr); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	counts.PerFile[path] = cr.lines
	return nil
}

// countingReader counts newline bytes passing through it.
type countingReader struct {
	r     io.Reader
	lines int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	for _, b := range p[:n] {
		if b == '\n' {
			c.lines++
		}
	}
	return n, err
}
