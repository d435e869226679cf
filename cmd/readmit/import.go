package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gyeh/readmitstats/internal/db"
	"github.com/gyeh/readmitstats/internal/exitcode"
	"github.com/gyeh/readmitstats/internal/ingest"
	"github.com/gyeh/readmitstats/internal/logging"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import reference tables, claims, beneficiaries and ICD files",
	RunE:  runImport,
}

func init() {
	addImportFlags(importCmd)
	rootCmd.AddCommand(importCmd)
}

func addImportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding state/, inpatient/, bene/ and icd/ (or set READMIT_DATA_DIR)")
	f.BoolVar(&cfg.Force, "force", false, "Re-import sources even if their files are unchanged")
	f.StringSliceVar(&cfg.Sources, "source", cfg.Sources, "Sources to import: state, claims, beneficiaries, icd")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	if err := cfg.ValidateImport(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	summary, err := ingest.Run(ctx, pool, log, &cfg)
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("import failed")
			if pe.Phase == ingest.PhasePreflight {
				os.Exit(exitcode.ValidationError)
			}
			os.Exit(exitcode.ImportError)
		}
		log.Error().Err(err).Msg("import failed")
		os.Exit(exitcode.ImportError)
	}

	fmt.Printf("Import complete: %d files imported, %d skipped, %d rows rejected (%.1fs)\n",
		summary.FilesImported, summary.FilesSkipped, summary.RowsRejected, summary.DurationTotal.Seconds())
	tables := make([]string, 0, len(summary.RowsByTable))
	for t := range summary.RowsByTable {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Printf("  %-40s %d\n", t, summary.RowsByTable[t])
	}
	return nil
}
