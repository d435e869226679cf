package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/readmit"
	"github.com/gyeh/readmitstats/internal/scope"
	"github.com/gyeh/readmitstats/internal/stats"
)

// icd10ByClaim stands in for the crosswalked icd10_dgns_code column.
var icd10ByClaim = map[string]string{"1": "I509", "2": "I10", "3": "I10", "9": "E119"}

type fakeRepo struct {
	admissions   []model.Admission
	err          error
	scopes       []scope.Predicate
	describeArgs []scope.Predicate
}

func (f *fakeRepo) Admissions(_ context.Context, pred scope.Predicate, _ stats.YearRange) ([]model.Admission, error) {
	f.scopes = append(f.scopes, pred)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Admission
	for _, a := range f.admissions {
		if pred.Matches(icd10ByClaim[a.ClaimID]) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) Describe(_ context.Context, pred scope.Predicate) ([]model.DiagnosisDescription, error) {
	f.describeArgs = append(f.describeArgs, pred)
	return []model.DiagnosisDescription{{Code: "I10", Description: "Essential (primary) hypertension"}}, nil
}

func (f *fakeRepo) States(context.Context) ([]model.State, error) {
	return []model.State{
		{Code: "05", Name: "California", Abbr: "CA"},
		{Code: "33", Name: "New York", Abbr: "NY"},
	}, nil
}

type fakeTranslator struct {
	next  scope.Translation
	texts []string
}

func (f *fakeTranslator) Translate(_ context.Context, text string) scope.Translation {
	f.texts = append(f.texts, text)
	return f.next
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func adm(bene, claim, admit, discharge, dx, state, sex string) model.Admission {
	a := model.Admission{
		BeneficiaryID: bene,
		ClaimID:       claim,
		AdmissionDate: day(admit),
		DischargeDate: day(discharge),
		Demographics:  model.Demographics{State: state, Sex: sex},
	}
	a.Diagnoses[0] = dx
	return a
}

// B is readmitted once inside 30 days, then again after 35 days. C has one stay.
func scenario() []model.Admission {
	return []model.Admission{
		adm("B", "1", "2009-01-01", "2009-01-10", "4280", "05", "1"),
		adm("B", "2", "2009-01-20", "2009-01-25", "4019", "05", "1"),
		adm("B", "3", "2009-03-01", "2009-03-05", "4019", "05", "1"),
		adm("C", "9", "2009-06-01", "2009-06-03", "25000", "33", "2"),
	}
}

func newOrchestrator(t *testing.T, repo Repository, tr Translator) *Orchestrator {
	t.Helper()
	table, err := readmit.DefaultTransplantTable()
	require.NoError(t, err)
	o, err := New(repo, tr, readmit.NewClassifier(table), Options{}, zerolog.Nop())
	require.NoError(t, err)
	return o
}

func mustFilter(t *testing.T, filter string) scope.Predicate {
	t.Helper()
	p, err := scope.ParseFilter(filter)
	require.NoError(t, err)
	return p
}

func TestRun_EmptyFilterMatchesDirectAggregation(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	tr := &fakeTranslator{next: scope.Translation{Outcome: scope.OutcomeEmpty}}
	o := newOrchestrator(t, repo, tr)

	sess := NewSession()
	res, err := o.Run(context.Background(), sess, Request{Text: "  "})
	require.NoError(t, err)

	assert.Equal(t, StatusNoFilter, res.Status)
	assert.False(t, res.TooBroad)
	assert.True(t, res.Scope.IsUniversal())
	assert.Equal(t, sess, res.Session)
	assert.Empty(t, repo.describeArgs)
	assert.Equal(t, StageRendered, res.Stage)

	table, err := readmit.DefaultTransplantTable()
	require.NoError(t, err)
	direct := readmit.NewClassifier(table).Classify(scenario())
	assert.Equal(t, stats.Aggregate(direct.Events, stats.DefaultYears, stats.ByStateSexYear), res.Buckets)

	require.Len(t, res.States, 2)
	ca := res.States[0]
	assert.Equal(t, "CA", ca.Abbr)
	assert.Equal(t, int64(1), ca.Readmissions)
	assert.Equal(t, int64(3), ca.TotalAdmissions)
	require.NotNil(t, ca.Rate)
	assert.InDelta(t, 1.0/3, *ca.Rate, 1e-9)

	require.Len(t, res.Top, 2)
	assert.Equal(t, "CA", res.Top[0].Abbr)
	assert.Equal(t, "NY", res.Top[1].Abbr)
	assert.Equal(t, DefaultMinRate, res.MinRate)
	assert.Equal(t, DefaultMaxRate, res.MaxRate)
	assert.Equal(t, 1, res.Readmissions)
}

func TestRun_AcceptedFilterUpdatesSession(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	pred := mustFilter(t, "ICD10_DGNS_CODE = 'I10'")
	tr := &fakeTranslator{next: scope.Translation{Outcome: scope.OutcomeAccepted, Predicate: pred}}
	o := newOrchestrator(t, repo, tr)

	res, err := o.Run(context.Background(), NewSession(), Request{Text: "hypertension"})
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, pred, res.Session.Accepted)
	assert.Equal(t, pred, res.Scope)
	assert.Len(t, res.Codes, 1)
	assert.Equal(t, []string{"hypertension"}, tr.texts)
	require.Len(t, repo.scopes, 1)
	assert.Equal(t, pred, repo.scopes[0])

	// Only B's two I10 stays are in scope, 35 days apart.
	require.Len(t, res.States, 1)
	assert.Equal(t, int64(0), res.States[0].Readmissions)
	assert.Equal(t, int64(2), res.States[0].TotalAdmissions)
	assert.Equal(t, 0.0, res.MinRate)
	assert.Equal(t, 0.0, res.MaxRate)
}

func TestRun_UnknownStatesLeftOffTheMap(t *testing.T) {
	adms := append(scenario(),
		adm("D", "20", "2009-02-01", "2009-02-03", "4019", "", "1"),
		adm("E", "21", "2009-04-01", "2009-04-02", "4019", "99", "2"),
	)
	repo := &fakeRepo{admissions: adms}
	o := newOrchestrator(t, repo, &fakeTranslator{next: scope.Translation{Outcome: scope.OutcomeEmpty}})

	res, err := o.Run(context.Background(), NewSession(), Request{})
	require.NoError(t, err)

	var bucketStates []string
	for _, b := range res.Buckets {
		bucketStates = append(bucketStates, b.Key.State)
	}
	assert.Contains(t, bucketStates, "")
	assert.Contains(t, bucketStates, "99")

	assert.Equal(t, int64(2), res.Unplaced)
	require.Len(t, res.States, 2)
	require.Len(t, res.Top, 2)
	for _, s := range append(res.States, res.Top...) {
		assert.NotEmpty(t, s.Abbr, "state %q has no abbreviation", s.Code)
	}
	assert.Equal(t, "CA", res.Top[0].Abbr)
	assert.Equal(t, "NY", res.Top[1].Abbr)
}

func TestRun_FilterWithNoRatedStateUsesZeroRange(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	pred := mustFilter(t, "ICD10_DGNS_CODE = 'Z999'")
	tr := &fakeTranslator{next: scope.Translation{Outcome: scope.OutcomeAccepted, Predicate: pred}}
	o := newOrchestrator(t, repo, tr)

	res, err := o.Run(context.Background(), NewSession(), Request{Text: "nothing matches"})
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Empty(t, res.States)
	assert.Equal(t, 0.0, res.MinRate)
	assert.Equal(t, 0.0, res.MaxRate)
}

func TestRun_TooBroadKeepsPreviousScope(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	tr := &fakeTranslator{}
	o := newOrchestrator(t, repo, tr)
	ctx := context.Background()

	broad := mustFilter(t, "ICD10_DGNS_CODE LIKE 'A0%' OR ICD10_DGNS_CODE LIKE 'B0%'")
	tr.next = scope.Translation{Outcome: scope.OutcomeTooBroad, Predicate: broad, Err: scope.ErrTooBroad}

	t.Run("first use falls back to universal", func(t *testing.T) {
		res, err := o.Run(ctx, NewSession(), Request{Text: "everything"})
		require.NoError(t, err)
		assert.True(t, res.TooBroad)
		assert.Equal(t, StatusTooBroad, res.Status)
		assert.True(t, res.Scope.IsUniversal())
		assert.True(t, res.Session.Accepted.IsUniversal())
	})

	t.Run("previous accepted scope retained", func(t *testing.T) {
		prev := mustFilter(t, "ICD10_DGNS_CODE = 'I10'")
		sess := Session{ID: uuid.New(), Accepted: prev}
		res, err := o.Run(ctx, sess, Request{Text: "everything"})
		require.NoError(t, err)
		assert.True(t, res.TooBroad)
		assert.Equal(t, prev, res.Scope)
		assert.Equal(t, prev, res.Session.Accepted)
		assert.Equal(t, sess.ID, res.Session.ID)
	})
}

func TestRun_FailedTranslationIsUnfiltered(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	tr := &fakeTranslator{next: scope.Translation{Outcome: scope.OutcomeFailed, Err: errors.New("timeout")}}
	o := newOrchestrator(t, repo, tr)

	prev := mustFilter(t, "ICD10_DGNS_CODE = 'I10'")
	res, err := o.Run(context.Background(), Session{ID: uuid.New(), Accepted: prev}, Request{Text: "diabetes"})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.TooBroad)
	assert.True(t, res.Scope.IsUniversal())
	assert.Equal(t, prev, res.Session.Accepted, "a failed translation leaves the session alone")
	assert.Equal(t, 4, res.Admissions)
}

func TestRun_KeepScope(t *testing.T) {
	repo := &fakeRepo{admissions: scenario()}
	tr := &fakeTranslator{}
	o := newOrchestrator(t, repo, tr)

	prev := mustFilter(t, "ICD10_DGNS_CODE = 'I10'")
	res, err := o.Run(context.Background(), Session{ID: uuid.New(), Accepted: prev}, Request{Text: "ignored", KeepScope: true})
	require.NoError(t, err)
	assert.Equal(t, StatusKeptPrevious, res.Status)
	assert.Equal(t, prev, res.Scope)
	assert.Empty(t, tr.texts)

	res, err = o.Run(context.Background(), NewSession(), Request{KeepScope: true})
	require.NoError(t, err)
	assert.Equal(t, StatusNoFilter, res.Status)
}

func TestRun_NoTranslator(t *testing.T) {
	o := newOrchestrator(t, &fakeRepo{admissions: scenario()}, nil)

	res, err := o.Run(context.Background(), Session{}, Request{Text: "diabetes"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEqual(t, uuid.Nil, res.Session.ID)

	res, err = o.Run(context.Background(), Session{}, Request{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoFilter, res.Status)
}

func TestRun_RepositoryFailureIsFatal(t *testing.T) {
	down := errors.New("connection refused")
	o := newOrchestrator(t, &fakeRepo{err: down}, nil)

	res, err := o.Run(context.Background(), NewSession(), Request{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, down)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageClassified, pe.Stage)
}

func TestNew_RejectsUnknownGrouping(t *testing.T) {
	_, err := New(&fakeRepo{}, nil, nil, Options{Grouping: "county"}, zerolog.Nop())
	assert.Error(t, err)
}
