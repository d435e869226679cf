package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyeh/readmitstats/internal/exitcode"
	"github.com/gyeh/readmitstats/internal/extract"
	"github.com/gyeh/readmitstats/internal/ingest"
	"github.com/gyeh/readmitstats/internal/logging"
	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run validation and stats of a data directory (no writes)",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding state/, inpatient/, bene/ and icd/")
	f.StringSliceVar(&cfg.Sources, "source", cfg.Sources, "Sources to check: state, claims, beneficiaries, icd")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	fmt.Println("=== readmit plan ===")
	fmt.Printf("Data dir: %s\n", cfg.DataDir)

	selected := make(map[string]bool, len(cfg.Sources))
	for _, name := range cfg.Sources {
		selected[name] = true
	}
	for _, src := range model.AllSources {
		if !selected[src.Name] {
			continue
		}
		fmt.Printf("\n[%s] %s\n", src.Name, filepath.Join(cfg.DataDir, src.Dir))
		if err := planSource(src); err != nil {
			log.Error().Err(err).Str("source", src.Name).Msg("validation failed")
			os.Exit(exitcode.ValidationError)
		}
	}
	fmt.Println("\nValidation: OK")
	return nil
}

func planSource(src model.Source) error {
	dir := filepath.Join(cfg.DataDir, src.Dir)
	if src.Name == "icd" {
		return planICD(dir)
	}

	inputs, err := extract.CSVInputs(dir, src.Archive)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no csv input in %s", dir)
	}
	if err := printFiles(inputPaths(inputs)); err != nil {
		return err
	}

	for _, in := range inputs {
		var rows, rejected int64
		extra := ""
		switch src.Name {
		case "claims":
			benes := make(map[string]struct{})
			rows, rejected, err = scanInput(in, func(r *extract.CSVReader) error {
				row, err := normalize.ToClaimRow(r, uuid.Nil)
				if err == nil {
					benes[row.BeneficiaryID] = struct{}{}
				}
				return err
			})
			extra = fmt.Sprintf(", %d beneficiaries", len(benes))
		case "beneficiaries":
			year := extract.SummaryYear(in.Name)
			rows, rejected, err = scanInput(in, func(r *extract.CSVReader) error {
				_, err := normalize.ToBeneficiaryRow(r, uuid.Nil, r.RowNum(), year)
				return err
			})
			if year == nil {
				extra = ", no summary year in file name"
			} else {
				extra = fmt.Sprintf(", summary year %d", *year)
			}
		default:
			rows, rejected, err = scanInput(in, func(r *extract.CSVReader) error {
				if normalize.StateCode(r.Get("sp_state_code")) == nil {
					return fmt.Errorf("missing state code")
				}
				return nil
			})
		}
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		fmt.Printf("  %-60s %8d rows, %d rejected%s\n", in.Name, rows, rejected, extra)
	}
	return nil
}

func planICD(dir string) error {
	xwalkPath := filepath.Join(dir, ingest.CrosswalkFile)
	descPaths, err := filepath.Glob(filepath.Join(dir, ingest.DescriptionsPattern))
	if err != nil {
		return err
	}
	if len(descPaths) == 0 {
		return fmt.Errorf("no %s in %s", ingest.DescriptionsPattern, dir)
	}
	sort.Strings(descPaths)
	if err := printFiles(append([]string{xwalkPath}, descPaths...)); err != nil {
		return err
	}

	f, err := os.Open(xwalkPath)
	if err != nil {
		return err
	}
	defer f.Close()
	icd9 := make(map[string]struct{})
	var pairs int
	if err := extract.ReadCrosswalk(f, func(row model.CrosswalkRow) error {
		icd9[row.ICD9] = struct{}{}
		pairs++
		return nil
	}); err != nil {
		return err
	}
	fmt.Printf("  %-60s %8d pairs, %d ICD-9 codes\n", ingest.CrosswalkFile, pairs, len(icd9))

	for _, p := range descPaths {
		df, err := os.Open(p)
		if err != nil {
			return err
		}
		var n int
		err = extract.ReadDescriptions(df, func(model.DiagnosisDescription) error {
			n++
			return nil
		})
		df.Close()
		if err != nil {
			return err
		}
		fmt.Printf("  %-60s %8d descriptions\n", filepath.Base(p), n)
	}
	return nil
}

func printFiles(paths []string) error {
	for _, p := range paths {
		sha, err := normalize.FileHash(p)
		if err != nil {
			return fmt.Errorf("hash %s: %w", p, err)
		}
		stat, err := os.Stat(p)
		if err != nil {
			return err
		}
		fmt.Printf("  file %-55s %12d bytes  sha256 %s\n", filepath.Base(p), stat.Size(), sha[:12])
	}
	return nil
}

func inputPaths(inputs []extract.Input) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, in := range inputs {
		if !seen[in.Path] {
			seen[in.Path] = true
			paths = append(paths, in.Path)
		}
	}
	return paths
}

// scanInput reads every record of in; check errors count as rejections.
func scanInput(in extract.Input, check func(*extract.CSVReader) error) (rows, rejected int64, err error) {
	rc, err := in.Open()
	if err != nil {
		return 0, 0, err
	}
	r, err := extract.NewCSVReader(rc)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, rejected, nil
		}
		if err != nil {
			return rows, rejected, err
		}
		rows++
		if check(r) != nil {
			rejected++
		}
	}
}
