// Package claims reads admissions and reference data back out of Postgres for
// analysis. Scope restrictions arrive as typed predicates and are bound as query
// parameters; no caller-supplied SQL text reaches the database.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
	"github.com/gyeh/readmitstats/internal/scope"
	embedsql "github.com/gyeh/readmitstats/internal/sql"
	"github.com/gyeh/readmitstats/internal/stats"
)

// ErrUnavailable wraps every database failure. Analysis cannot proceed without
// data, so callers treat it as fatal.
var ErrUnavailable = errors.New("claims repository unavailable")

// DefaultDescriptionLimit caps the rows returned by Describe.
const DefaultDescriptionLimit = 500

const descriptionCacheSize = 256

// Repository is the read side of the claims store.
type Repository struct {
	pool  *pgxpool.Pool
	log   zerolog.Logger
	limit int
	cache *lru.Cache[string, []model.DiagnosisDescription]
}

// NewRepository returns a Repository over pool.
func NewRepository(pool *pgxpool.Pool, log zerolog.Logger) (*Repository, error) {
	cache, err := lru.New[string, []model.DiagnosisDescription](descriptionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create description cache: %w", err)
	}
	return &Repository{
		pool:  pool,
		log:   log.With().Str("component", "claims").Logger(),
		limit: DefaultDescriptionLimit,
		cache: cache,
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Admissions returns the admissions matching pred, ordered by beneficiary,
// admission date and claim id, joined to beneficiary state and sex. Every
// admission before the end of years is returned, including earlier years, so
// the first admission inside the window still sees its predecessor. Admissions
// with no admission date are included for the classifier to drop.
func (r *Repository) Admissions(ctx context.Context, pred scope.Predicate, years stats.YearRange) ([]model.Admission, error) {
	start := time.Now()
	end := time.Date(years.To+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	patterns := pred.LikePatterns()
	codes := pred.Codes
	if codes == nil {
		codes = []string{}
	}

	rows, err := r.pool.Query(ctx, embedsql.SelectAdmissions, end, pred.IsUniversal(), patterns, codes)
	if err != nil {
		return nil, unavailable("query admissions", err)
	}
	defer rows.Close()

	var out []model.Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, unavailable("scan admission", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read admissions", err)
	}

	r.log.Debug().
		Str("scope", pred.String()).
		Str("years", years.String()).
		Int("admissions", len(out)).
		Dur("duration", time.Since(start)).
		Msg("admissions loaded")
	return out, nil
}

func scanAdmission(rows pgx.Rows) (model.Admission, error) {
	var (
		a         model.Admission
		dx        [model.DiagnosisSlots]*string
		px        [model.ProcedureSlots]*string
		admission *time.Time
		discharge *time.Time
	)
	dest := []any{&a.BeneficiaryID, &a.ClaimID, &admission, &discharge}
	for i := range dx {
		dest = append(dest, &dx[i])
	}
	for i := range px {
		dest = append(dest, &px[i])
	}
	dest = append(dest, &a.State, &a.Sex)
	if err := rows.Scan(dest...); err != nil {
		return a, err
	}
	a.AdmissionDate = admission
	a.DischargeDate = discharge
	for i, d := range dx {
		if d != nil {
			a.Diagnoses[i] = normalize.Code(*d)
		}
	}
	for i, p := range px {
		if p != nil {
			a.Procedures[i] = normalize.Code(*p)
		}
	}
	return a, nil
}

// Describe returns (code, description) pairs for the codes pred matches, from
// the ICD-10 description table. The universal predicate describes nothing.
func (r *Repository) Describe(ctx context.Context, pred scope.Predicate) ([]model.DiagnosisDescription, error) {
	if pred.IsUniversal() {
		return nil, nil
	}
	key := strings.Join(pred.Prefixes, ",") + "|" + strings.Join(pred.Codes, ",")
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	codes := pred.Codes
	if codes == nil {
		codes = []string{}
	}
	rows, err := r.pool.Query(ctx, embedsql.SelectDescriptions, pred.LikePatterns(), codes, r.limit)
	if err != nil {
		return nil, unavailable("query descriptions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DiagnosisDescription, error) {
		var d model.DiagnosisDescription
		err := row.Scan(&d.Code, &d.Description)
		return d, err
	})
	if err != nil {
		return nil, unavailable("read descriptions", err)
	}
	r.cache.Add(key, out)
	return out, nil
}

// States returns the state reference table ordered by SSA code.
func (r *Repository) States(ctx context.Context) ([]model.State, error) {
	rows, err := r.pool.Query(ctx, embedsql.SelectStates)
	if err != nil {
		return nil, unavailable("query states", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.State, error) {
		var s model.State
		err := row.Scan(&s.Code, &s.Name, &s.Abbr)
		return s, err
	})
	if err != nil {
		return nil, unavailable("read states", err)
	}
	return out, nil
}
