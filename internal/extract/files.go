// Package extract reads the raw SynPUF inputs: CSV files loose in a source
// directory or packed in a zip archive, and the fixed-width ICD reference files.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Input is one readable CSV stream. Several inputs may share one Path when
// they are entries of the same archive.
type Input struct {
	Name string // display name, "archive.zip:entry.csv" for archive entries
	Path string // file on disk the content comes from
	open func() (io.ReadCloser, error)
}

// Open returns a reader over the input's content.
func (in Input) Open() (io.ReadCloser, error) { return in.open() }

// FileInput returns an Input for a plain file.
func FileInput(path string) Input {
	return Input{
		Name: filepath.Base(path),
		Path: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// CSVInputs lists the CSV inputs of dir: every *.csv entry of archive (when
// archive is not empty and exists in dir) followed by every loose *.csv file,
// each group sorted by name. A missing directory yields no inputs.
func CSVInputs(dir, archive string) ([]Input, error) {
	var out []Input
	if archive != "" {
		path := filepath.Join(dir, archive)
		if _, err := os.Stat(path); err == nil {
			entries, err := zipInputs(path)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	loose, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list csv files: %w", err)
	}
	sort.Strings(loose)
	for _, p := range loose {
		out = append(out, FileInput(p))
	}
	return out, nil
}

func zipInputs(path string) ([]Input, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
			continue
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)

	base := filepath.Base(path)
	out := make([]Input, 0, len(names))
	for _, name := range names {
		name := name
		out = append(out, Input{
			Name: base + ":" + name,
			Path: path,
			open: func() (io.ReadCloser, error) { return openZipEntry(path, name) },
		})
	}
	return out, nil
}

type zipEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntry) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

func openZipEntry(path, name string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	f, err := zr.Open(name)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("open %s in %s: %w", name, path, err)
	}
	return &zipEntry{ReadCloser: f, archive: zr}, nil
}

var yearRE = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)[0-9]{2})(?:[^0-9]|$)`)

// SummaryYear extracts the coverage year from a beneficiary-summary file name,
// e.g. 2009 from "DE1_0_2009_Beneficiary_Summary_File_Sample_1.csv".
func SummaryYear(name string) *int32 {
	m := yearRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return nil
	}
	y := int32(n)
	return &y
}
