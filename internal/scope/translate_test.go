package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	content string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.content, f.err
}

func TestTranslate_EmptyInput(t *testing.T) {
	fc := &fakeCompleter{}
	tr := NewTranslator(fc, 0, zerolog.Nop())

	for _, text := range []string{"", "   ", "\n\t"} {
		got := tr.Translate(context.Background(), text)
		assert.Equal(t, OutcomeEmpty, got.Outcome)
		assert.True(t, got.Predicate.IsUniversal())
		assert.NoError(t, got.Err)
	}
	assert.Empty(t, fc.prompts, "empty input must not call the service")
}

func TestTranslate_Accepted(t *testing.T) {
	fc := &fakeCompleter{content: fenced(
		"SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE c.ICD10_DGNS_CODE LIKE 'E10%' OR c.ICD10_DGNS_CODE LIKE 'E11%' OR c.ICD10_DGNS_CODE LIKE 'E13%'")}
	tr := NewTranslator(fc, 0, zerolog.Nop())

	got := tr.Translate(context.Background(), "  diabetes ")
	require.Equal(t, OutcomeAccepted, got.Outcome, "err: %v", got.Err)
	assert.Equal(t, []string{"E10", "E11", "E13"}, got.Predicate.Prefixes)
	assert.Equal(t, 3, got.Predicate.Breadth())
	assert.NoError(t, got.Err)

	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "The user's condition is:\ndiabetes\n")
	assert.Contains(t, fc.prompts[0], "$$$")
}

func TestTranslate_TooBroad(t *testing.T) {
	fc := &fakeCompleter{content: fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE " + likeFilter(10))}
	tr := NewTranslator(fc, 0, zerolog.Nop())

	got := tr.Translate(context.Background(), "anything chronic")
	assert.Equal(t, OutcomeTooBroad, got.Outcome)
	assert.ErrorIs(t, got.Err, ErrTooBroad)
	assert.Equal(t, 10, got.Predicate.Breadth())
}

func TestTranslate_NineGroupsAccepted(t *testing.T) {
	fc := &fakeCompleter{content: fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE " + likeFilter(9))}
	got := NewTranslator(fc, 0, zerolog.Nop()).Translate(context.Background(), "endocrine")
	assert.Equal(t, OutcomeAccepted, got.Outcome)
}

func TestTranslate_CustomLimit(t *testing.T) {
	fc := &fakeCompleter{content: fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE " + likeFilter(3))}
	tr := NewTranslator(fc, 3, zerolog.Nop())
	assert.Equal(t, 3, tr.MaxBreadth())
	assert.Equal(t, OutcomeTooBroad, tr.Translate(context.Background(), "x").Outcome)
}

func TestTranslate_Failures(t *testing.T) {
	cases := []struct {
		name    string
		fc      *fakeCompleter
		wantErr error
	}{
		{"transport", &fakeCompleter{err: errors.New("connection refused")}, nil},
		{"no fence", &fakeCompleter{content: "I cannot help with that."}, ErrNoFragment},
		{"no where", &fakeCompleter{content: fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10")}, ErrNoWhereClause},
		{"injection", &fakeCompleter{content: fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10 WHERE ICD10_DGNS_CODE = 'E10' OR 1=1")}, ErrUnsupportedCondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewTranslator(tc.fc, 0, zerolog.Nop()).Translate(context.Background(), "diabetes")
			assert.Equal(t, OutcomeFailed, got.Outcome)
			assert.True(t, got.Predicate.IsUniversal())
			require.Error(t, got.Err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, got.Err, tc.wantErr)
			}
			assert.Len(t, tc.fc.prompts, 1, "the service is called exactly once")
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "too_broad", OutcomeTooBroad.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
