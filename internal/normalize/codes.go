package normalize

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizeCode trims whitespace, uppercases, and strips non-alphanumeric characters,
// so "v42.0 " and "V420" compare equal. Returns nil if the input is nil or the
// result is empty.
func NormalizeCode(v *string) *string {
	if v == nil {
		return nil
	}
	s := Code(*v)
	if s == "" {
		return nil
	}
	return &s
}

// Code is NormalizeCode for plain strings; an unusable code becomes "".
func Code(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	return nonAlphanumeric.ReplaceAllString(strings.ToUpper(s), "")
}
