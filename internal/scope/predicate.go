// Package scope turns a free-text condition description into a typed restriction
// over diagnosis codes.
//
// The text-generation service is asked for a SQL statement, but that statement
// is never executed. Its WHERE clause is parsed against a small allow-listed
// grammar (LIKE-prefix, equality and IN comparisons on the diagnosis column,
// joined by OR) and the result is a Predicate. The claims repository builds its
// own parameterized query from the Predicate.
package scope

import (
	"regexp"
	"sort"
	"strings"
)

// DiagnosisColumn is the only column a generated filter may reference.
const DiagnosisColumn = "ICD10_DGNS_CODE"

// DefaultMaxBreadth is the number of distinct diagnosis groups at which a
// filter is rejected as too broad.
const DefaultMaxBreadth = 10

var groupRE = regexp.MustCompile(`^[A-Z]\d{1,3}`)

// Predicate restricts claims to those whose diagnosis code starts with one of
// Prefixes or equals one of Codes. The zero value is the universal predicate.
type Predicate struct {
	Prefixes []string `json:"prefixes,omitempty"`
	Codes    []string `json:"codes,omitempty"`
	// Filter is the normalized filter text the predicate was parsed from. It is
	// for display only.
	Filter string `json:"filter,omitempty"`
}

// Universal returns the predicate that matches every claim.
func Universal() Predicate { return Predicate{} }

// IsUniversal reports whether p places no restriction on claims.
func (p Predicate) IsUniversal() bool {
	return len(p.Prefixes) == 0 && len(p.Codes) == 0
}

// Groups returns the distinct top-level diagnosis groups (one letter and up to
// three digits) referenced by the predicate, sorted. ok is false when some
// prefix is too short to name a group, e.g. a bare letter.
func (p Predicate) Groups() (groups []string, ok bool) {
	ok = true
	seen := make(map[string]struct{})
	add := func(code string) {
		g := groupRE.FindString(code)
		if g == "" {
			ok = false
			return
		}
		if _, dup := seen[g]; !dup {
			seen[g] = struct{}{}
			groups = append(groups, g)
		}
	}
	for _, pre := range p.Prefixes {
		add(pre)
	}
	for _, c := range p.Codes {
		add(c)
	}
	sort.Strings(groups)
	return groups, ok
}

// Breadth is the breadth estimate: the number of distinct diagnosis groups the
// predicate references.
func (p Predicate) Breadth() int {
	g, _ := p.Groups()
	return len(g)
}

// TooBroad reports whether the predicate references max or more groups, or a
// prefix that cannot be bounded to a group.
func (p Predicate) TooBroad(max int) bool {
	if p.IsUniversal() {
		return false
	}
	g, ok := p.Groups()
	return !ok || len(g) >= max
}

// Matches reports whether code satisfies the predicate.
func (p Predicate) Matches(code string) bool {
	if p.IsUniversal() {
		return true
	}
	for _, c := range p.Codes {
		if code == c {
			return true
		}
	}
	for _, pre := range p.Prefixes {
		if strings.HasPrefix(code, pre) {
			return true
		}
	}
	return false
}

// LikePatterns returns the prefixes as SQL LIKE patterns.
func (p Predicate) LikePatterns() []string {
	out := make([]string, len(p.Prefixes))
	for i, pre := range p.Prefixes {
		out[i] = pre + "%"
	}
	return out
}

// String renders the predicate in the same form the repository applies it.
func (p Predicate) String() string {
	if p.IsUniversal() {
		return "all claims"
	}
	var terms []string
	for _, pre := range p.Prefixes {
		terms = append(terms, DiagnosisColumn+" LIKE '"+pre+"%'")
	}
	if len(p.Codes) > 0 {
		terms = append(terms, DiagnosisColumn+" IN ('"+strings.Join(p.Codes, "', '")+"')")
	}
	return strings.Join(terms, " OR ")
}

func newPredicate(prefixes, codes map[string]struct{}, filter string) Predicate {
	p := Predicate{Filter: filter}
	for pre := range prefixes {
		p.Prefixes = append(p.Prefixes, pre)
	}
codes:
	for c := range codes {
		for pre := range prefixes {
			if strings.HasPrefix(c, pre) {
				continue codes
			}
		}
		p.Codes = append(p.Codes, c)
	}
	sort.Strings(p.Prefixes)
	sort.Strings(p.Codes)
	return p
}
