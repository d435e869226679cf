// Package stats turns classified admissions into per-group readmission rates.
package stats

import (
	"fmt"
	"sort"

	"github.com/gyeh/readmitstats/internal/model"
)

// YearRange is an inclusive range of admission years.
type YearRange struct {
	From int `yaml:"from" json:"from"`
	To   int `yaml:"to" json:"to"`
}

// DefaultYears is the window with complete SynPUF claims coverage.
var DefaultYears = YearRange{From: 2008, To: 2010}

// Contains reports whether year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.From && year <= r.To
}

// Validate checks that the range is non-empty.
func (r YearRange) Validate() error {
	if r.From <= 0 || r.To <= 0 {
		return fmt.Errorf("year range %d-%d: years must be positive", r.From, r.To)
	}
	if r.From > r.To {
		return fmt.Errorf("year range %d-%d: from is after to", r.From, r.To)
	}
	return nil
}

func (r YearRange) String() string { return fmt.Sprintf("%d-%d", r.From, r.To) }

// KeyFunc maps an event to its group.
type KeyFunc func(e *model.ReadmissionEvent) model.GroupKey

// ByStateSexYear groups by admission year, state and sex.
func ByStateSexYear(e *model.ReadmissionEvent) model.GroupKey {
	return model.GroupKey{Year: e.Year(), State: e.State, Sex: e.Sex}
}

// ByStateSex groups by state and sex across all years.
func ByStateSex(e *model.ReadmissionEvent) model.GroupKey {
	return model.GroupKey{State: e.State, Sex: e.Sex}
}

// ByState groups by state only.
func ByState(e *model.ReadmissionEvent) model.GroupKey {
	return model.GroupKey{State: e.State}
}

// KeyFuncByName resolves a grouping name from configuration.
func KeyFuncByName(name string) (KeyFunc, error) {
	switch name {
	case "state_sex_year", "":
		return ByStateSexYear, nil
	case "state_sex":
		return ByStateSex, nil
	case "state":
		return ByState, nil
	}
	return nil, fmt.Errorf("unknown grouping %q (want state_sex_year, state_sex or state)", name)
}

type tally struct {
	readmitted map[string]struct{}
	total      map[string]struct{}
}

// Aggregate partitions events inside years by key and counts distinct qualifying
// claim ids over distinct admitted claim ids. One bucket is returned per key
// present, sorted ascending by key.
func Aggregate(events []model.ReadmissionEvent, years YearRange, key KeyFunc) []model.RateBucket {
	groups := make(map[model.GroupKey]*tally)
	for i := range events {
		e := &events[i]
		if !years.Contains(e.Year()) {
			continue
		}
		k := key(e)
		g, ok := groups[k]
		if !ok {
			g = &tally{readmitted: make(map[string]struct{}), total: make(map[string]struct{})}
			groups[k] = g
		}
		g.total[e.ClaimID] = struct{}{}
		if e.Qualifies {
			g.readmitted[e.ClaimID] = struct{}{}
		}
	}

	buckets := make([]model.RateBucket, 0, len(groups))
	for k, g := range groups {
		buckets = append(buckets, newBucket(k, int64(len(g.readmitted)), int64(len(g.total))))
	}
	SortByKey(buckets)
	return buckets
}

// Rollup re-aggregates buckets under a coarser key, summing counts. Buckets are
// assumed to partition distinct claims, which holds for Aggregate output.
func Rollup(buckets []model.RateBucket, key func(model.GroupKey) model.GroupKey) []model.RateBucket {
	sums := make(map[model.GroupKey]*model.RateBucket)
	for _, b := range buckets {
		k := key(b.Key)
		s, ok := sums[k]
		if !ok {
			s = &model.RateBucket{Key: k}
			sums[k] = s
		}
		s.Readmissions += b.Readmissions
		s.TotalAdmissions += b.TotalAdmissions
	}
	out := make([]model.RateBucket, 0, len(sums))
	for _, s := range sums {
		out = append(out, newBucket(s.Key, s.Readmissions, s.TotalAdmissions))
	}
	SortByKey(out)
	return out
}

// StateOnly drops year and sex from a key.
func StateOnly(k model.GroupKey) model.GroupKey { return model.GroupKey{State: k.State} }

// SortByKey sorts buckets ascending by key.
func SortByKey(buckets []model.RateBucket) {
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key.Less(buckets[j].Key) })
}

// TopByRate returns up to n buckets with the highest rate, ties broken by key.
// Buckets without a rate are never included. The input is not modified.
func TopByRate(buckets []model.RateBucket, n int) []model.RateBucket {
	rated := make([]model.RateBucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Rate != nil {
			rated = append(rated, b)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		ri, rj := *rated[i].Rate, *rated[j].Rate
		if ri != rj {
			return ri > rj
		}
		return rated[i].Key.Less(rated[j].Key)
	})
	if n >= 0 && len(rated) > n {
		rated = rated[:n]
	}
	return rated
}

// RateRange returns the lowest and highest defined rates, or ok=false when no
// bucket has one.
func RateRange(buckets []model.RateBucket) (lo, hi float64, ok bool) {
	for _, b := range buckets {
		if b.Rate == nil {
			continue
		}
		if !ok {
			lo, hi, ok = *b.Rate, *b.Rate, true
			continue
		}
		if *b.Rate < lo {
			lo = *b.Rate
		}
		if *b.Rate > hi {
			hi = *b.Rate
		}
	}
	return lo, hi, ok
}

func newBucket(k model.GroupKey, readmissions, total int64) model.RateBucket {
	b := model.RateBucket{Key: k, Readmissions: readmissions, TotalAdmissions: total}
	if total > 0 {
		r := float64(readmissions) / float64(total)
		b.Rate = &r
	}
	return b
}
