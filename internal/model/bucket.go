package model

import (
	"fmt"
	"strings"
)

// GroupKey identifies one aggregation group. Dimensions a grouping does not use
// are left at their zero value.
type GroupKey struct {
	Year  int    `json:"year,omitempty"`
	State string `json:"state,omitempty"`
	Sex   string `json:"sex,omitempty"`
}

// Less orders keys by year, then state, then sex.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.State != o.State {
		return k.State < o.State
	}
	return k.Sex < o.Sex
}

func (k GroupKey) String() string {
	var parts []string
	if k.Year != 0 {
		parts = append(parts, fmt.Sprintf("%d", k.Year))
	}
	if k.State != "" {
		parts = append(parts, k.State)
	}
	if k.Sex != "" {
		parts = append(parts, k.Sex)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "/")
}

// RateBucket holds readmission counts for one group. Rate is nil when
// TotalAdmissions is zero.
type RateBucket struct {
	Key             GroupKey `json:"key"`
	Readmissions    int64    `json:"readmissions"`
	TotalAdmissions int64    `json:"total_admissions"`
	Rate            *float64 `json:"rate"`
}
