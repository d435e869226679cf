package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/readmitstats/internal/analysis"
	"github.com/gyeh/readmitstats/internal/claims"
	"github.com/gyeh/readmitstats/internal/db"
	"github.com/gyeh/readmitstats/internal/exitcode"
	"github.com/gyeh/readmitstats/internal/export"
	"github.com/gyeh/readmitstats/internal/llm"
	"github.com/gyeh/readmitstats/internal/logging"
	"github.com/gyeh/readmitstats/internal/readmit"
	"github.com/gyeh/readmitstats/internal/scope"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify readmissions and report rates by state",
	RunE:  runAnalyze,
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&cfg.Analysis.Filter, "filter", "", "Free-text condition to scope the analysis (needs LLM_API_URL)")
	f.StringVar(&cfg.Analysis.OutPath, "out", "", "Write rate buckets to this Parquet file")
	f.StringVar(&cfg.Analysis.Grouping, "grouping", cfg.Analysis.Grouping, "Grouping: state_sex_year, state_sex or state")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	repo, err := claims.NewRepository(pool, log)
	if err != nil {
		log.Error().Err(err).Msg("repository setup failed")
		os.Exit(exitcode.AnalysisError)
	}
	orch, err := newOrchestrator(repo, log)
	if err != nil {
		log.Error().Err(err).Msg("analysis setup failed")
		os.Exit(exitcode.UsageError)
	}

	res, err := orch.Run(ctx, analysis.NewSession(), analysis.Request{Text: cfg.Analysis.Filter})
	if err != nil {
		var pe *analysis.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("stage", pe.Stage.String()).Msg("analysis failed")
		} else {
			log.Error().Err(err).Msg("analysis failed")
		}
		os.Exit(exitcode.AnalysisError)
	}

	runID := uuid.New()
	// Only the unscoped run is the canonical rate table.
	if res.Scope.IsUniversal() {
		if _, err := repo.ReplaceRates(ctx, runID, res.Buckets); err != nil {
			log.Error().Err(err).Msg("storing rates failed")
			os.Exit(exitcode.AnalysisError)
		}
	}

	if cfg.Analysis.OutPath != "" {
		if err := export.WriteFile(cfg.Analysis.OutPath, runID.String(), res.Buckets); err != nil {
			log.Error().Err(err).Str("path", cfg.Analysis.OutPath).Msg("export failed")
			os.Exit(exitcode.ExportError)
		}
		if err := export.Verify(cfg.Analysis.OutPath, runID.String(), res.Buckets); err != nil {
			log.Error().Err(err).Str("path", cfg.Analysis.OutPath).Msg("exported file does not read back")
			os.Exit(exitcode.ExportError)
		}
		log.Info().Str("path", cfg.Analysis.OutPath).Int("buckets", len(res.Buckets)).Msg("rates exported")
	}

	printReport(os.Stdout, res)
	return nil
}

// newOrchestrator wires the classifier and, when an LLM endpoint is
// configured, the condition translator.
func newOrchestrator(repo analysis.Repository, log zerolog.Logger) (*analysis.Orchestrator, error) {
	table, err := readmit.DefaultTransplantTable()
	if cfg.Analysis.TransplantTable != "" {
		table, err = readmit.LoadTransplantTableFile(cfg.Analysis.TransplantTable)
	}
	if err != nil {
		return nil, fmt.Errorf("transplant table: %w", err)
	}

	var translator analysis.Translator
	if cfg.TranslationEnabled() {
		client, err := llm.New(llm.Config{
			BaseURL:   cfg.LLM.BaseURL,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			Timeout:   cfg.LLM.Timeout,
			RateLimit: cfg.LLM.RateLimit,
			Log:       log,
		})
		if err != nil {
			return nil, err
		}
		translator = scope.NewTranslator(client, cfg.Analysis.MaxBreadth, log)
	} else {
		log.Info().Msg("LLM_API_URL not set, condition filters will be reported as failed")
	}

	return analysis.New(repo, translator, readmit.NewClassifier(table), analysis.Options{
		Years:    cfg.Analysis.Years,
		Grouping: cfg.Analysis.Grouping,
		TopN:     cfg.Analysis.TopN,
	}, log)
}

func printReport(w io.Writer, res *analysis.Result) {
	fmt.Fprintf(w, "Status:       %s\n", res.Status)
	if !res.Scope.IsUniversal() {
		fmt.Fprintf(w, "Scope:        %s\n", res.Scope)
	}
	fmt.Fprintf(w, "Admissions:   %d (%d dropped)\n", res.Admissions, res.Dropped)
	fmt.Fprintf(w, "Readmissions: %d\n", res.Readmissions)
	if res.Unplaced > 0 {
		fmt.Fprintf(w, "No state:     %d admissions\n", res.Unplaced)
	}
	fmt.Fprintf(w, "Rate range:   %.4f - %.4f\n\n", res.MinRate, res.MaxRate)

	fmt.Fprintf(w, "Top %d states by readmission rate:\n", len(res.Top))
	for i, s := range res.Top {
		rate := "n/a"
		if s.Rate != nil {
			rate = fmt.Sprintf("%.4f", *s.Rate)
		}
		fmt.Fprintf(w, "  %2d. %-3s %-22s %8s  (%d / %d)\n",
			i+1, s.Abbr, s.Name, rate, s.Readmissions, s.TotalAdmissions)
	}
}
