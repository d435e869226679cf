package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/readmitstats/internal/model"
)

var rateColumns = []string{
	"year",
	"sp_state_code",
	"bene_sex_ident_cd",
	"readmissions",
	"total_admissions",
	"readmission_rate",
	"run_id",
}

// ReplaceRates swaps the stored unfiltered rates for buckets in one
// transaction. Buckets must be keyed by year, state and sex.
func (r *Repository) ReplaceRates(ctx context.Context, runID uuid.UUID, buckets []model.RateBucket) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable("begin rates transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM claims.readmission_rate"); err != nil {
		return 0, unavailable("clear rates", err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"claims", "readmission_rate"},
		rateColumns,
		pgx.CopyFromSlice(len(buckets), func(i int) ([]any, error) {
			b := buckets[i]
			if b.Key.Year == 0 {
				return nil, fmt.Errorf("bucket %s has no year", b.Key)
			}
			return []any{b.Key.Year, b.Key.State, b.Key.Sex, b.Readmissions, b.TotalAdmissions, b.Rate, runID}, nil
		}),
	)
	if err != nil {
		return 0, unavailable("copy rates", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("commit rates", err)
	}

	r.log.Info().Str("run_id", runID.String()).Int64("rows", n).Msg("readmission rates replaced")
	return n, nil
}
