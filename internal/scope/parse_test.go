package scope

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fenced(sql string) string {
	return "Here is the query:\n$$$\n" + sql + "\n$$$\nLet me know if you need more."
}

func TestExtract(t *testing.T) {
	t.Run("strips comments and collapses whitespace", func(t *testing.T) {
		sql, err := Extract(fenced("SELECT *\n  FROM INPATIENT_CLAIMS_ICD10 as c -- claims\n\tWHERE c.ICD10_DGNS_CODE LIKE 'E10%';"))
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM INPATIENT_CLAIMS_ICD10 as c WHERE c.ICD10_DGNS_CODE LIKE 'E10%'", sql)
	})
	t.Run("no fence", func(t *testing.T) {
		_, err := Extract("SELECT * FROM INPATIENT_CLAIMS_ICD10 WHERE ICD10_DGNS_CODE LIKE 'E10%'")
		assert.ErrorIs(t, err, ErrNoFragment)
	})
	t.Run("two fragments", func(t *testing.T) {
		_, err := Extract(fenced("SELECT 1") + fenced("SELECT 2"))
		assert.ErrorIs(t, err, ErrNoFragment)
	})
	t.Run("empty fragment", func(t *testing.T) {
		_, err := Extract("$$$ -- nothing\n $$$")
		assert.ErrorIs(t, err, ErrNoFragment)
	})
	t.Run("not a select", func(t *testing.T) {
		_, err := Extract(fenced("DELETE FROM INPATIENT_CLAIMS_ICD10 WHERE ICD10_DGNS_CODE LIKE 'E10%'"))
		assert.ErrorIs(t, err, ErrUnsupportedCondition)
	})
}

func TestWhereClause(t *testing.T) {
	w, err := WhereClause("SELECT * FROM t as c where c.ICD10_DGNS_CODE = 'I10'")
	require.NoError(t, err)
	assert.Equal(t, "c.ICD10_DGNS_CODE = 'I10'", w)

	_, err = WhereClause("SELECT * FROM t")
	assert.ErrorIs(t, err, ErrNoWhereClause)
}

func TestParseFilter_Accepted(t *testing.T) {
	cases := []struct {
		name     string
		filter   string
		prefixes []string
		codes    []string
		breadth  int
	}{
		{
			name:     "diabetes prefixes",
			filter:   "c.ICD10_DGNS_CODE LIKE 'E10%' OR c.ICD10_DGNS_CODE LIKE 'E11%' OR c.ICD10_DGNS_CODE LIKE 'E13%'",
			prefixes: []string{"E10", "E11", "E13"},
			breadth:  3,
		},
		{
			name:     "parenthesized, lower case keywords",
			filter:   "(icd10_dgns_code like 'i21%' or (icd10_dgns_code like 'I22%'))",
			prefixes: []string{"I21", "I22"},
			breadth:  2,
		},
		{
			name:    "equality and IN",
			filter:  "ICD10_DGNS_CODE = 'I10' OR ICD10_DGNS_CODE IN ('I110', 'I119')",
			codes:   []string{"I10", "I110", "I119"},
			breadth: 3,
		},
		{
			name:     "period marks removed and codes under a prefix folded",
			filter:   "ICD10_DGNS_CODE LIKE 'J44.%' OR ICD10_DGNS_CODE = 'J441'",
			prefixes: []string{"J44"},
			breadth:  1,
		},
		{
			name:     "LIKE without wildcard is exact",
			filter:   "ICD10_DGNS_CODE LIKE 'N179'",
			codes:    []string{"N179"},
			breadth:  1,
		},
		{
			name:     "trailing ORDER BY ignored",
			filter:   "ICD10_DGNS_CODE LIKE 'C50%' ORDER BY CLM_ADMSN_DT",
			prefixes: []string{"C50"},
			breadth:  1,
		},
		{
			name:     "duplicate prefixes counted once",
			filter:   "ICD10_DGNS_CODE LIKE 'E10%' OR c.ICD10_DGNS_CODE LIKE 'e10%'",
			prefixes: []string{"E10"},
			breadth:  1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParseFilter(tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.prefixes, p.Prefixes)
			assert.Equal(t, tc.codes, p.Codes)
			assert.Equal(t, tc.breadth, p.Breadth())
			assert.False(t, p.IsUniversal())
		})
	}
}

func TestParseFilter_TrailingClauseTrimmedFromText(t *testing.T) {
	p, err := ParseFilter("ICD10_DGNS_CODE LIKE 'C50%' LIMIT 100")
	require.NoError(t, err)
	assert.Equal(t, "ICD10_DGNS_CODE LIKE 'C50%'", p.Filter)
}

func TestParseFilter_Rejected(t *testing.T) {
	cases := map[string]string{
		"other column":        "CLM_PMT_AMT = '100'",
		"AND":                 "ICD10_DGNS_CODE LIKE 'E10%' AND CLM_DRG_CD = '001'",
		"NOT LIKE":            "ICD10_DGNS_CODE NOT LIKE 'E10%'",
		"tautology":           "ICD10_DGNS_CODE LIKE 'E10%' OR 1=1",
		"subquery":            "ICD10_DGNS_CODE IN (SELECT code FROM other)",
		"function":            "UPPER(ICD10_DGNS_CODE) LIKE 'E10%'",
		"inner wildcard":      "ICD10_DGNS_CODE LIKE 'E1_%'",
		"unterminated string": "ICD10_DGNS_CODE LIKE 'E10%",
		"statement chaining":  "ICD10_DGNS_CODE = 'E10' ; DROP TABLE claims",
		"unbalanced":          "(ICD10_DGNS_CODE LIKE 'E10%'",
		"empty":               "",
	}
	for name, filter := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFilter(filter)
			assert.ErrorIs(t, err, ErrUnsupportedCondition)
		})
	}
}

func likeFilter(n int) string {
	terms := make([]string, n)
	for i := range terms {
		terms[i] = fmt.Sprintf("c.ICD10_DGNS_CODE LIKE 'E%02d%%'", i)
	}
	return strings.Join(terms, " OR ")
}

func TestPredicate_TooBroadBoundary(t *testing.T) {
	nine, err := ParseFilter(likeFilter(9))
	require.NoError(t, err)
	assert.Equal(t, 9, nine.Breadth())
	assert.False(t, nine.TooBroad(DefaultMaxBreadth))

	ten, err := ParseFilter(likeFilter(10))
	require.NoError(t, err)
	assert.Equal(t, 10, ten.Breadth())
	assert.True(t, ten.TooBroad(DefaultMaxBreadth))
}

func TestPredicate_UnboundedPrefixTooBroad(t *testing.T) {
	p, err := ParseFilter("ICD10_DGNS_CODE LIKE 'E%'")
	require.NoError(t, err)
	assert.True(t, p.TooBroad(DefaultMaxBreadth))

	p, err = ParseFilter("ICD10_DGNS_CODE LIKE '%'")
	require.NoError(t, err)
	assert.True(t, p.TooBroad(DefaultMaxBreadth))
}

func TestPredicate_Matches(t *testing.T) {
	assert.True(t, Universal().Matches("Z999"))
	assert.False(t, Universal().TooBroad(DefaultMaxBreadth))

	p, err := ParseFilter("ICD10_DGNS_CODE LIKE 'E11%' OR ICD10_DGNS_CODE = 'I10'")
	require.NoError(t, err)
	assert.True(t, p.Matches("E119"))
	assert.True(t, p.Matches("I10"))
	assert.False(t, p.Matches("I110"))
	assert.Equal(t, []string{"E11%"}, p.LikePatterns())
	assert.Equal(t, "ICD10_DGNS_CODE LIKE 'E11%' OR ICD10_DGNS_CODE IN ('I10')", p.String())
}

func TestParse_EndToEnd(t *testing.T) {
	p, err := Parse(fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10 as c\nWHERE c.ICD10_DGNS_CODE LIKE 'E10%' -- type 1\n OR c.ICD10_DGNS_CODE LIKE 'E11%'\n OR c.ICD10_DGNS_CODE LIKE 'E13%';"))
	require.NoError(t, err)
	assert.Equal(t, []string{"E10", "E11", "E13"}, p.Prefixes)
	groups, ok := p.Groups()
	assert.True(t, ok)
	assert.Equal(t, []string{"E10", "E11", "E13"}, groups)

	_, err = Parse(fenced("SELECT * FROM INPATIENT_CLAIMS_ICD10"))
	assert.ErrorIs(t, err, ErrNoWhereClause)
}
