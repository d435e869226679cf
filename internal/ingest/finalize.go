package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/readmitstats/internal/sql"
)

// Finalize records the imported files in the registry, replacing the source's
// previous entries, and runs ANALYZE on the source table.
func Finalize(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, pf *PreflightResult, rowsPerFile map[string]int64) error {
	start := time.Now()

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM claims.import_files WHERE source = $1", pf.Source.Name); err != nil {
			return fmt.Errorf("clear registry: %w", err)
		}
		for _, f := range pf.Files {
			if _, err := tx.Exec(ctx, embedsql.RegisterImportFile,
				pf.Source.Name, f.Name, f.SHA256, pf.IngestBatchID, rowsPerFile[f.Path],
			); err != nil {
				return fmt.Errorf("register %s: %w", f.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// ANALYZE
	if _, err := pool.Exec(ctx, "ANALYZE "+pf.Source.Table); err != nil {
		return fmt.Errorf("analyze %s: %w", pf.Source.Table, err)
	}

	log.Info().
		Str("source", pf.Source.Name).
		Int("files", len(pf.Files)).
		Dur("duration", time.Since(start)).
		Msg("source finalized")
	return nil
}
