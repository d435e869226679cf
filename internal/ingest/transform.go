package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/readmitstats/internal/sql"
)

// FoldBeneficiaries replaces claims.beneficiary_summary with one row per
// beneficiary from the staged batch. The latest summary year wins.
func FoldBeneficiaries(ctx context.Context, tx pgx.Tx, log zerolog.Logger, batchID uuid.UUID, counts *LoadCounts) error {
	start := time.Now()

	if _, err := tx.Exec(ctx, "DELETE FROM claims.beneficiary_summary"); err != nil {
		return fmt.Errorf("clear beneficiaries: %w", err)
	}
	tag, err := tx.Exec(ctx, embedsql.FoldBeneficiaries, batchID)
	if err != nil {
		return fmt.Errorf("fold beneficiaries: %w", err)
	}

	rows := tag.RowsAffected()
	counts.Rows["claims.beneficiary_summary"] = rows
	log.Info().
		Int64("rows_inserted", rows).
		Str("duration", time.Since(start).String()).
		Msg("beneficiary fold complete")
	return nil
}

// ApplyCrosswalk sets icd10_dgns_code on every claim from its primary ICD-9
// diagnosis and returns the number of claims updated.
func ApplyCrosswalk(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (int64, error) {
	start := time.Now()

	tag, err := pool.Exec(ctx, embedsql.ApplyCrosswalk)
	if err != nil {
		return 0, fmt.Errorf("apply crosswalk: %w", err)
	}

	var mapped int64
	if err := pool.QueryRow(ctx,
		"SELECT count(*) FROM claims.inpatient_claims WHERE icd10_dgns_code IS NOT NULL",
	).Scan(&mapped); err != nil {
		return 0, fmt.Errorf("count mapped claims: %w", err)
	}

	log.Info().
		Int64("rows_updated", tag.RowsAffected()).
		Int64("rows_mapped", mapped).
		Str("duration", time.Since(start).String()).
		Msg("crosswalk applied")
	return tag.RowsAffected(), nil
}
