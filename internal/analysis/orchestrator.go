// Package analysis runs one scope-resolve, classify, aggregate cycle per request.
// The accepted scope lives in a Session that callers pass in and get back; the
// orchestrator holds no per-user state of its own.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/readmit"
	"github.com/gyeh/readmitstats/internal/scope"
	"github.com/gyeh/readmitstats/internal/stats"
)

// Status texts reported with every result.
const (
	StatusNoFilter     = "no filter applied"
	StatusFailed       = "AI request failed, showing unfiltered results"
	StatusTooBroad     = "search too broad, showing previous results"
	StatusApplied      = "filter applied"
	StatusKeptPrevious = "using previously accepted filter"
)

// Colour-scale bounds used when no filter is applied.
const (
	DefaultMinRate = 0.0
	DefaultMaxRate = 0.1
)

// DefaultTopN is the number of states in Result.Top.
const DefaultTopN = 10

// Stage is a step of the analysis cycle.
type Stage int

const (
	StageIdle Stage = iota
	StageScopeResolved
	StageClassified
	StageAggregated
	StageRendered
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageScopeResolved:
		return "scope"
	case StageClassified:
		return "classify"
	case StageAggregated:
		return "aggregate"
	case StageRendered:
		return "render"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// PipelineError wraps a fatal error with the stage that was being entered.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Repository is the read side the orchestrator needs.
type Repository interface {
	Admissions(ctx context.Context, pred scope.Predicate, years stats.YearRange) ([]model.Admission, error)
	Describe(ctx context.Context, pred scope.Predicate) ([]model.DiagnosisDescription, error)
	States(ctx context.Context) ([]model.State, error)
}

// Translator resolves condition text to a scope. *scope.Translator satisfies it.
type Translator interface {
	Translate(ctx context.Context, text string) scope.Translation
}

// Session is the per-user scope state. Accepted changes only when a filter is
// translated and passes the breadth guard.
type Session struct {
	ID       uuid.UUID       `json:"id"`
	Accepted scope.Predicate `json:"accepted"`
}

// NewSession returns a session with a fresh id and universal scope.
func NewSession() Session {
	return Session{ID: uuid.New()}
}

// Request is one analysis request.
type Request struct {
	// Text is the free-text condition. Empty means no filter.
	Text string
	// KeepScope reuses the session's accepted predicate and ignores Text.
	KeepScope bool
}

// StateRate is one state-level row ready for display.
type StateRate struct {
	Code            string   `json:"code"`
	Abbr            string   `json:"abbr"`
	Name            string   `json:"name"`
	Readmissions    int64    `json:"readmissions"`
	TotalAdmissions int64    `json:"total_admissions"`
	Rate            *float64 `json:"rate"`
}

// Result is the outcome of one Run.
type Result struct {
	Session  Session
	Stage    Stage
	Scope    scope.Predicate
	Outcome  scope.Outcome
	Status   string
	TooBroad bool
	Codes    []model.DiagnosisDescription

	Buckets []model.RateBucket
	States  []StateRate
	Top     []StateRate
	MinRate float64
	MaxRate float64

	Admissions   int
	Dropped      int
	Readmissions int
	// Unplaced counts in-range admissions whose state is unknown or missing
	// from the state table. They stay in Buckets but not in States or Top.
	Unplaced int64
}

// Options configures an Orchestrator.
type Options struct {
	Years    stats.YearRange
	Grouping string // stats.KeyFuncByName name
	TopN     int
}

// Orchestrator composes translation, repository reads, classification and
// aggregation.
type Orchestrator struct {
	repo       Repository
	translator Translator
	classifier *readmit.Classifier
	years      stats.YearRange
	key        stats.KeyFunc
	topN       int
	log        zerolog.Logger
}

// New returns an Orchestrator. translator may be nil, in which case every
// non-empty filter is reported as a failed translation.
func New(repo Repository, translator Translator, classifier *readmit.Classifier, opts Options, log zerolog.Logger) (*Orchestrator, error) {
	key, err := stats.KeyFuncByName(opts.Grouping)
	if err != nil {
		return nil, err
	}
	if opts.Years == (stats.YearRange{}) {
		opts.Years = stats.DefaultYears
	}
	if err := opts.Years.Validate(); err != nil {
		return nil, err
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &Orchestrator{
		repo:       repo,
		translator: translator,
		classifier: classifier,
		years:      opts.Years,
		key:        key,
		topN:       opts.TopN,
		log:        log.With().Str("component", "analysis").Logger(),
	}, nil
}

// Run executes one request against sess. Translation problems degrade to a
// fallback scope and are reported through Result.Status; repository failures
// are fatal and returned as *PipelineError.
func (o *Orchestrator) Run(ctx context.Context, sess Session, req Request) (*Result, error) {
	start := time.Now()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	res := &Result{Stage: StageIdle}

	o.resolveScope(ctx, &sess, req, res)
	res.Session = sess
	if !res.Scope.IsUniversal() {
		codes, err := o.repo.Describe(ctx, res.Scope)
		if err != nil {
			return nil, &PipelineError{Stage: StageScopeResolved, Err: err}
		}
		res.Codes = codes
	}
	res.Stage = StageScopeResolved

	admissions, err := o.repo.Admissions(ctx, res.Scope, o.years)
	if err != nil {
		return nil, &PipelineError{Stage: StageClassified, Err: err}
	}
	classified := o.classifier.Classify(admissions)
	res.Admissions = len(admissions)
	res.Dropped = classified.Dropped
	res.Readmissions = classified.Readmissions()
	res.Stage = StageClassified

	res.Buckets = stats.Aggregate(classified.Events, o.years, o.key)
	stateBuckets := stats.Rollup(res.Buckets, stats.StateOnly)
	res.Stage = StageAggregated

	states, err := o.repo.States(ctx)
	if err != nil {
		return nil, &PipelineError{Stage: StageRendered, Err: err}
	}
	byCode := make(map[string]model.State, len(states))
	for _, s := range states {
		byCode[s.Code] = s
	}
	placed := make([]model.RateBucket, 0, len(stateBuckets))
	for _, b := range stateBuckets {
		if _, ok := byCode[b.Key.State]; !ok {
			res.Unplaced += b.TotalAdmissions
			continue
		}
		placed = append(placed, b)
	}
	res.States = stateRates(placed, byCode)
	res.Top = stateRates(stats.TopByRate(placed, o.topN), byCode)

	res.MinRate, res.MaxRate = DefaultMinRate, DefaultMaxRate
	if !res.Scope.IsUniversal() {
		res.MinRate, res.MaxRate = 0, 0
		if lo, hi, ok := stats.RateRange(placed); ok {
			res.MinRate, res.MaxRate = lo, hi
		}
	}
	res.Stage = StageRendered

	o.log.Info().
		Str("session", sess.ID.String()).
		Str("scope", res.Scope.String()).
		Str("status", res.Status).
		Int("admissions", res.Admissions).
		Int("dropped", res.Dropped).
		Int("readmissions", res.Readmissions).
		Int64("unplaced", res.Unplaced).
		Int("buckets", len(res.Buckets)).
		Dur("duration", time.Since(start)).
		Msg("analysis complete")
	return res, nil
}

// resolveScope picks the predicate for this request and updates sess when a
// new filter is accepted.
func (o *Orchestrator) resolveScope(ctx context.Context, sess *Session, req Request, res *Result) {
	if req.KeepScope {
		res.Scope = sess.Accepted
		res.Outcome = scope.OutcomeEmpty
		res.Status = StatusKeptPrevious
		if sess.Accepted.IsUniversal() {
			res.Status = StatusNoFilter
		}
		return
	}

	var tr scope.Translation
	switch {
	case o.translator == nil && strings.TrimSpace(req.Text) != "":
		o.log.Warn().Msg("condition filter requested but no translation service is configured")
		tr = scope.Translation{Outcome: scope.OutcomeFailed}
	case o.translator == nil:
		tr = scope.Translation{Outcome: scope.OutcomeEmpty}
	default:
		tr = o.translator.Translate(ctx, req.Text)
	}
	res.Outcome = tr.Outcome

	switch tr.Outcome {
	case scope.OutcomeAccepted:
		sess.Accepted = tr.Predicate
		res.Scope = tr.Predicate
		res.Status = StatusApplied
	case scope.OutcomeTooBroad:
		res.Scope = sess.Accepted
		res.TooBroad = true
		res.Status = StatusTooBroad
	case scope.OutcomeFailed:
		res.Scope = scope.Universal()
		res.Status = StatusFailed
	default:
		res.Scope = scope.Universal()
		res.Status = StatusNoFilter
	}
}

func stateRates(buckets []model.RateBucket, byCode map[string]model.State) []StateRate {
	out := make([]StateRate, 0, len(buckets))
	for _, b := range buckets {
		s := byCode[b.Key.State]
		out = append(out, StateRate{
			Code:            b.Key.State,
			Abbr:            s.Abbr,
			Name:            s.Name,
			Readmissions:    b.Readmissions,
			TotalAdmissions: b.TotalAdmissions,
			Rate:            b.Rate,
		})
	}
	return out
}
