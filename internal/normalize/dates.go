package normalize

import (
	"strings"
	"time"
)

// Date layouts seen in SynPUF extracts and reference files. The compact form is
// what the CMS CSVs use; the rest show up in hand-edited fixtures.
var dateFormats = []string{
	"20060102",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// ParseDate attempts to parse a date string in the known layouts. The result is a
// UTC midnight so day arithmetic is exact. Returns nil if the input is empty or
// unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// Some exports carry the date as a float, e.g. "20080104.0".
	s = strings.TrimSuffix(s, ".0")
	for _, layout := range dateFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// DaysBetween returns whole days from a to b (b - a). Both are expected to be
// UTC midnights as produced by ParseDate.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
