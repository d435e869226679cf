// Package ingest loads the SynPUF extracts and reference files into Postgres.
// Each source is replaced as a whole inside one transaction, so re-running an
// import never duplicates rows.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/config"
	"github.com/gyeh/readmitstats/internal/model"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Import phases reported in PipelineError.Phase.
const (
	PhasePreflight = "preflight"
	PhaseReference = "reference"
	PhaseClaims    = "claims"
	PhaseBene      = "beneficiaries"
	PhaseICD       = "icd"
	PhaseCrosswalk = "crosswalk"
	PhaseFinalize  = "finalize"
)

// Run imports every configured source in pipeline order: reference tables,
// claims, beneficiaries, then ICD reference files. Sources whose files are all
// unchanged since the last import are skipped unless cfg.Force is set.
func Run(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, cfg *config.Config) (*model.ImportSummary, error) {
	totalStart := time.Now()
	batchID := uuid.New()
	summary := &model.ImportSummary{
		DataDir:        cfg.DataDir,
		IngestBatchID:  batchID.String(),
		RowsByTable:    make(map[string]int64),
		DurationByStep: make(map[string]time.Duration),
	}

	selected := make(map[string]bool, len(cfg.Sources))
	for _, name := range cfg.Sources {
		selected[name] = true
	}

	needCrosswalk := false
	for _, src := range model.AllSources {
		if !selected[src.Name] {
			continue
		}

		log.Info().Str("source", src.Name).Msg("starting preflight")
		pf, err := Preflight(ctx, pool, log, cfg.DataDir, src, cfg.Force)
		if err != nil {
			return nil, &PipelineError{Phase: PhasePreflight, Err: err}
		}
		if pf.Unchanged {
			log.Info().
				Str("source", src.Name).
				Int("files", len(pf.Files)).
				Msg("source unchanged, skipping (use --force to re-import)")
			summary.FilesSkipped += len(pf.Files)
			continue
		}
		pf.IngestBatchID = batchID

		start := time.Now()
		phase, counts, err := importSource(ctx, pool, log, pf)
		if err != nil {
			return nil, &PipelineError{Phase: phase, Err: err}
		}
		for table, n := range counts.Rows {
			summary.RowsByTable[table] += n
		}
		summary.RowsRejected += counts.Rejected

		if err := Finalize(ctx, pool, log, pf, counts.PerFile); err != nil {
			return nil, &PipelineError{Phase: PhaseFinalize, Err: err}
		}
		summary.FilesImported += len(pf.Files)
		summary.DurationByStep[src.Name] = time.Since(start)

		if src.Name == "claims" || src.Name == "icd" {
			needCrosswalk = true
		}
	}

	if needCrosswalk {
		start := time.Now()
		n, err := ApplyCrosswalk(ctx, pool, log)
		if err != nil {
			return nil, &PipelineError{Phase: PhaseCrosswalk, Err: err}
		}
		summary.RowsByTable["claims.inpatient_claims (icd10)"] = n
		summary.DurationByStep[PhaseCrosswalk] = time.Since(start)
	}

	if err := Cleanup(ctx, pool, log, batchID); err != nil {
		log.Warn().Err(err).Msg("staging cleanup failed (non-fatal)")
	}

	summary.DurationTotal = time.Since(totalStart)
	log.Info().
		Int("files_imported", summary.FilesImported).
		Int("files_skipped", summary.FilesSkipped).
		Int64("rows_rejected", summary.RowsRejected).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("import pipeline complete")
	return summary, nil
}

// LoadCounts collects what one source import wrote.
type LoadCounts struct {
	Rows     map[string]int64 // rows written per table
	PerFile  map[string]int64 // lines read per file path
	Rejected int64
}

// NewLoadCounts returns empty counts.
func NewLoadCounts() *LoadCounts {
	return &LoadCounts{Rows: make(map[string]int64), PerFile: make(map[string]int64)}
}

// importSource replaces one source's tables in a single transaction. It returns
// the phase name to report on failure.
func importSource(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, pf *PreflightResult) (string, *LoadCounts, error) {
	counts := NewLoadCounts()
	var phase string
	var fn func(tx pgx.Tx) error

	switch pf.Source.Name {
	case "state":
		phase = PhaseReference
		fn = func(tx pgx.Tx) error { return ImportReference(ctx, tx, log, pf, counts) }
	case "claims":
		phase = PhaseClaims
		fn = func(tx pgx.Tx) error { return StageClaims(ctx, tx, log, pf, counts) }
	case "beneficiaries":
		phase = PhaseBene
		fn = func(tx pgx.Tx) error {
			if err := StageBeneficiaries(ctx, tx, log, pf, counts); err != nil {
				return err
			}
			return FoldBeneficiaries(ctx, tx, log, pf.IngestBatchID, counts)
		}
	case "icd":
		phase = PhaseICD
		fn = func(tx pgx.Tx) error { return ImportICD(ctx, tx, log, pf, counts) }
	default:
		return PhasePreflight, nil, fmt.Errorf("no importer for source %q", pf.Source.Name)
	}

	if err := pgx.BeginFunc(ctx, pool, fn); err != nil {
		return phase, nil, err
	}
	return phase, counts, nil
}
