package readmit

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/readmitstats/internal/normalize"
)

//go:embed transplant_codes.yaml
var defaultTransplantCodes []byte

// TransplantTable maps codes and diagnosis prefixes to a transplant category.
type TransplantTable struct {
	prefixes map[string]string
	ordered  []string // prefixes, longest first
	codes    map[string]string
}

type transplantFile struct {
	Categories []struct {
		Name     string   `yaml:"name"`
		Prefixes []string `yaml:"prefixes"`
		Codes    []string `yaml:"codes"`
	} `yaml:"categories"`
}

// DefaultTransplantTable returns the built-in exclusion table.
func DefaultTransplantTable() (*TransplantTable, error) {
	return LoadTransplantTable(bytes.NewReader(defaultTransplantCodes))
}

// LoadTransplantTableFile reads an exclusion table from a YAML file.
func LoadTransplantTableFile(path string) (*TransplantTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transplant table: %w", err)
	}
	defer f.Close()
	return LoadTransplantTable(f)
}

// LoadTransplantTable parses an exclusion table. A code listed under two
// categories is an error.
func LoadTransplantTable(r io.Reader) (*TransplantTable, error) {
	var tf transplantFile
	if err := yaml.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("parse transplant table: %w", err)
	}
	t := &TransplantTable{
		prefixes: make(map[string]string),
		codes:    make(map[string]string),
	}
	for _, c := range tf.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("transplant category without a name")
		}
		for _, p := range c.Prefixes {
			p = normalize.Code(p)
			if p == "" {
				continue
			}
			if prev, ok := t.prefixes[p]; ok {
				return nil, fmt.Errorf("prefix %s listed under %s and %s", p, prev, c.Name)
			}
			t.prefixes[p] = c.Name
		}
		for _, code := range c.Codes {
			code = normalize.Code(code)
			if code == "" {
				continue
			}
			if prev, ok := t.codes[code]; ok {
				return nil, fmt.Errorf("code %s listed under %s and %s", code, prev, c.Name)
			}
			t.codes[code] = c.Name
		}
	}
	if len(t.prefixes) == 0 && len(t.codes) == 0 {
		return nil, fmt.Errorf("transplant table is empty")
	}
	for p := range t.prefixes {
		t.ordered = append(t.ordered, p)
	}
	sort.Slice(t.ordered, func(i, j int) bool {
		if len(t.ordered[i]) != len(t.ordered[j]) {
			return len(t.ordered[i]) > len(t.ordered[j])
		}
		return t.ordered[i] < t.ordered[j]
	})
	return t, nil
}

// Category returns the transplant category matched by an admission's primary
// diagnosis or primary procedure code.
func (t *TransplantTable) Category(primaryDiagnosis, primaryProcedure string) (string, bool) {
	if primaryDiagnosis != "" {
		for _, p := range t.ordered {
			if strings.HasPrefix(primaryDiagnosis, p) {
				return t.prefixes[p], true
			}
		}
		if name, ok := t.codes[primaryDiagnosis]; ok {
			return name, true
		}
	}
	if primaryProcedure != "" {
		if name, ok := t.codes[primaryProcedure]; ok {
			return name, true
		}
	}
	return "", false
}

// Codes returns all enumerated codes, sorted, for audit output.
func (t *TransplantTable) Codes() []string {
	out := make([]string, 0, len(t.codes))
	for c := range t.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
