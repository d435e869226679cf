package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/readmitstats/internal/extract"
	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
	embedsql "github.com/gyeh/readmitstats/internal/sql"
)

// ICD reference file names under the icd source directory.
const (
	CrosswalkFile       = "gem_i9diag.txt"
	DescriptionsPattern = "icd10cm-codes-*.txt"
)

// SourceFile is one file on disk that feeds a source.
type SourceFile struct {
	Name   string // base name, the registry key
	Path   string
	SHA256 string
	Size   int64
}

// PreflightResult holds everything resolved before a source is imported.
type PreflightResult struct {
	Source model.Source
	Dir    string
	// Files are the distinct files on disk, sorted by name.
	Files []SourceFile
	// Inputs are the CSV streams for csv-backed sources, in read order.
	Inputs []extract.Input
	// CrosswalkPath and DescriptionPaths are set for the icd source.
	CrosswalkPath    string
	DescriptionPaths []string
	// IngestBatchID tags staged rows and registry entries for this run.
	IngestBatchID uuid.UUID
	// Unchanged is true when every file matches the registry and force is off.
	Unchanged bool
}

// Preflight locates a source's files, hashes them and compares the hashes with
// the import registry.
func Preflight(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, dataDir string, src model.Source, force bool) (*PreflightResult, error) {
	start := time.Now()
	pf := &PreflightResult{
		Source:        src,
		Dir:           filepath.Join(dataDir, src.Dir),
		IngestBatchID: uuid.New(),
	}

	var paths []string
	if src.Name == "icd" {
		pf.CrosswalkPath = filepath.Join(pf.Dir, CrosswalkFile)
		if _, err := os.Stat(pf.CrosswalkPath); err != nil {
			return nil, fmt.Errorf("preflight %s: %w", src.Name, err)
		}
		descs, err := filepath.Glob(filepath.Join(pf.Dir, DescriptionsPattern))
		if err != nil {
			return nil, fmt.Errorf("preflight %s: %w", src.Name, err)
		}
		if len(descs) == 0 {
			return nil, fmt.Errorf("preflight %s: no %s in %s", src.Name, DescriptionsPattern, pf.Dir)
		}
		sort.Strings(descs)
		pf.DescriptionPaths = descs
		paths = append([]string{pf.CrosswalkPath}, descs...)
	} else {
		inputs, err := extract.CSVInputs(pf.Dir, src.Archive)
		if err != nil {
			return nil, fmt.Errorf("preflight %s: %w", src.Name, err)
		}
		if len(inputs) == 0 {
			return nil, fmt.Errorf("preflight %s: no csv input in %s", src.Name, pf.Dir)
		}
		pf.Inputs = inputs
		seen := make(map[string]bool)
		for _, in := range inputs {
			if !seen[in.Path] {
				seen[in.Path] = true
				paths = append(paths, in.Path)
			}
		}
	}

	for _, p := range paths {
		sha, err := normalize.FileHash(p)
		if err != nil {
			return nil, fmt.Errorf("preflight hash: %w", err)
		}
		stat, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("preflight stat: %w", err)
		}
		pf.Files = append(pf.Files, SourceFile{Name: filepath.Base(p), Path: p, SHA256: sha, Size: stat.Size()})
	}
	sort.Slice(pf.Files, func(i, j int) bool { return pf.Files[i].Name < pf.Files[j].Name })

	registered, err := lookupImportFiles(ctx, pool, src.Name)
	if err != nil {
		return nil, fmt.Errorf("preflight registry: %w", err)
	}
	pf.Unchanged = !force && sameFiles(pf.Files, registered)

	log.Info().
		Str("source", src.Name).
		Int("files", len(pf.Files)).
		Int("inputs", len(pf.Inputs)).
		Bool("unchanged", pf.Unchanged).
		Dur("duration", time.Since(start)).
		Msg("preflight complete")
	return pf, nil
}

func lookupImportFiles(ctx context.Context, pool *pgxpool.Pool, source string) (map[string]string, error) {
	rows, err := pool.Query(ctx, embedsql.LookupImportFiles, source)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var name, sha string
	_, err = pgx.ForEachRow(rows, []any{&name, &sha}, func() error {
		out[name] = sha
		return nil
	})
	return out, err
}

func sameFiles(files []SourceFile, registered map[string]string) bool {
	if len(files) == 0 || len(files) != len(registered) {
		return false
	}
	for _, f := range files {
		if registered[f.Name] != f.SHA256 {
			return false
		}
	}
	return true
}
