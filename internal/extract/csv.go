package extract

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVReader streams a headed CSV file one record at a time. Columns are looked
// up by header name, case-insensitively.
type CSVReader struct {
	closer io.Closer
	csv    *csv.Reader
	header []string
	colIdx map[string]int
	record []string
	rowNum int64
}

// NewCSVReader reads the header row from rc. The reader takes ownership of rc.
func NewCSVReader(rc io.ReadCloser) (*CSVReader, error) {
	br := bufio.NewReaderSize(rc, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := br.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	headers, err := reader.Read()
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}
	r := &CSVReader{
		closer: rc,
		csv:    reader,
		header: append([]string(nil), headers...),
		colIdx: make(map[string]int, len(headers)),
		rowNum: 1,
	}
	for i, h := range headers {
		r.colIdx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return r, nil
}

// Has reports whether the header row contains name.
func (r *CSVReader) Has(name string) bool {
	_, ok := r.colIdx[strings.ToUpper(name)]
	return ok
}

// Next advances to the next record. It returns io.EOF at the end of input.
func (r *CSVReader) Next() error {
	rec, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read row %d: %w", r.rowNum+1, err)
	}
	r.rowNum++
	r.record = rec
	return nil
}

// Get returns the current record's value for the named column, or "" when the
// column or value is missing.
func (r *CSVReader) Get(name string) string {
	i, ok := r.colIdx[strings.ToUpper(name)]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

// Header returns the header row as read.
func (r *CSVReader) Header() []string { return r.header }

// Record returns a copy of the current record.
func (r *CSVReader) Record() []string { return append([]string(nil), r.record...) }

// RowNum returns the 1-based line number of the current record; the header is
// row 1.
func (r *CSVReader) RowNum() int64 { return r.rowNum }

// Close releases the underlying reader.
func (r *CSVReader) Close() error { return r.closer.Close() }
