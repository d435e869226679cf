package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/db"
	"github.com/gyeh/readmitstats/internal/extract"
	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

const copyBufferSize = 1024

// StageResult holds metrics from one COPY load.
type StageResult struct {
	RowsRead     int64
	RowsStaged   int64
	RowsRejected int64
	Duration     time.Duration
}

// StageClaims replaces claims.inpatient_claims with every claim line of the
// source's inputs.
func StageClaims(ctx context.Context, tx pgx.Tx, log zerolog.Logger, pf *PreflightResult, counts *LoadCounts) error {
	if _, err := tx.Exec(ctx, "DELETE FROM claims.inpatient_claims"); err != nil {
		return fmt.Errorf("clear claims: %w", err)
	}
	res, err := copyInputs(ctx, tx, log,
		pgx.Identifier{"claims", "inpatient_claims"},
		model.ClaimColumns(),
		pf.Inputs,
		counts,
		func(r *extract.CSVReader, _ extract.Input) (*model.ClaimRow, error) {
			return normalize.ToClaimRow(r, pf.IngestBatchID)
		},
	)
	if err != nil {
		return err
	}
	counts.Rows["claims.inpatient_claims"] = res.RowsStaged
	return nil
}

// StageBeneficiaries COPY-loads every beneficiary-summary line into the stage
// table under the preflight batch id. FoldBeneficiaries reduces them to one
// row per beneficiary.
func StageBeneficiaries(ctx context.Context, tx pgx.Tx, log zerolog.Logger, pf *PreflightResult, counts *LoadCounts) error {
	res, err := copyInputs(ctx, tx, log,
		pgx.Identifier{"claims", "stage_beneficiary_summary"},
		model.BeneficiaryColumns(),
		pf.Inputs,
		counts,
		func(r *extract.CSVReader, in extract.Input) (*model.BeneficiaryRow, error) {
			return normalize.ToBeneficiaryRow(r, pf.IngestBatchID, r.RowNum(), extract.SummaryYear(in.Name))
		},
	)
	if err != nil {
		return err
	}
	counts.Rows["claims.stage_beneficiary_summary"] = res.RowsStaged
	return nil
}

// copyInputs streams every input through convert and COPY-loads the rows into
// table via a channel-backed CopyFromSource. Rows convert rejects are counted
// and skipped.
func copyInputs[T db.CopyRow](
	ctx context.Context,
	tx pgx.Tx,
	log zerolog.Logger,
	table pgx.Identifier,
	columns []string,
	inputs []extract.Input,
	counts *LoadCounts,
	convert func(*extract.CSVReader, extract.Input) (T, error),
) (*StageResult, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan T, copyBufferSize)
	errCh := make(chan error, 1)
	var rowsRead, rowsRejected int64

	// Producer goroutine: read CSV → normalize → push to channel
	go func() {
		defer close(ch)
		for _, in := range inputs {
			n, err := readInput(ctx, log, in, ch, convert, &rowsRejected)
			rowsRead += n
			counts.PerFile[in.Path] += n
			if err != nil {
				errCh <- fmt.Errorf("%s: %w", in.Name, err)
				return
			}
		}
		errCh <- nil
	}()

	// Consumer: COPY from channel
	rowsStaged, err := tx.CopyFrom(ctx, table, columns, db.NewChannelSource[T](ch))
	cancel()
	for range ch {
	}

	prodErr := <-errCh
	if prodErr != nil && !(err != nil && errors.Is(prodErr, context.Canceled)) {
		return nil, fmt.Errorf("stage producer: %w", prodErr)
	}
	if err != nil {
		return nil, fmt.Errorf("stage copy %s: %w", table.Sanitize(), err)
	}
	counts.Rejected += rowsRejected

	dur := time.Since(start)
	log.Info().
		Str("table", table.Sanitize()).
		Int64("rows_read", rowsRead).
		Int64("rows_staged", rowsStaged).
		Int64("rows_rejected", rowsRejected).
		Str("duration", dur.String()).
		Float64("rows_per_sec", float64(rowsStaged)/dur.Seconds()).
		Msg("staging complete")

	return &StageResult{
		RowsRead:     rowsRead,
		RowsStaged:   rowsStaged,
		RowsRejected: rowsRejected,
		Duration:     dur,
	}, nil
}

func readInput[T db.CopyRow](
	ctx context.Context,
	log zerolog.Logger,
	in extract.Input,
	ch chan<- T,
	convert func(*extract.CSVReader, extract.Input) (T, error),
	rejected *int64,
) (int64, error) {
	rc, err := in.Open()
	if err != nil {
		return 0, err
	}
	r, err := extract.NewCSVReader(rc)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int64
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++

		row, convErr := convert(r, in)
		if convErr != nil {
			*rejected++
			log.Warn().Err(convErr).Str("file", in.Name).Int64("row", r.RowNum()).Msg("row rejected")
			continue
		}

		select {
		case ch <- row:
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

// DeleteStagingBatch deletes staged beneficiary rows for a specific batch.
func DeleteStagingBatch(ctx context.Context, tx pgx.Tx, batchID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx,
		"DELETE FROM claims.stage_beneficiary_summary WHERE ingest_batch_id = $1",
		batchID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
