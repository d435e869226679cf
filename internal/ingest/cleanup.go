package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Cleanup deletes staged beneficiary rows for the given batch.
func Cleanup(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, batchID uuid.UUID) error {
	start := time.Now()

	var deleted int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		n, err := DeleteStagingBatch(ctx, tx, batchID)
		deleted = n
		return err
	})
	if err != nil {
		return err
	}

	log.Info().
		Int64("rows_deleted", deleted).
		Dur("duration", time.Since(start)).
		Msg("staging cleanup complete")
	return nil
}
