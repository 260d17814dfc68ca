// Package table holds the per-strategy embedding tables written at the end of
// a corpus run.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dshills/patternvec/pkg/types"
)

// ErrDimensionMismatch is returned when a row's vector length differs from the
// table's dimension
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// LabelColumn is the first header cell
const LabelColumn = "category_label"

// Row is one embedded source unit
type Row struct {
	Label  string
	Path   string
	Vector []float32
}

// Table is an ordered set of rows sharing one strategy and dimension
type Table struct {
	Strategy  types.Strategy
	Dimension int
	Rows      []Row
}

// New creates an empty table
func New(strategy types.Strategy, dimension int) *Table {
	return &Table{Strategy: strategy, Dimension: dimension}
}

// Append adds a row, preserving insertion order
func (t *Table) Append(row Row) error {
	if len(row.Vector) != t.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row.Vector), t.Dimension)
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Header returns category_label followed by dim_0 ... dim_{H-1}
func (t *Table) Header() []string {
	header := make([]string, 0, t.Dimension+1)
	header = append(header, LabelColumn)
	for i := 0; i < t.Dimension; i++ {
		header = append(header, "dim_"+strconv.Itoa(i))
	}
	return header
}

// WriteCSV writes the header and one record per row
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, t.Dimension+1)
	for _, row := range t.Rows {
		record[0] = row.Label
		for i, v := range row.Vector {
			record[i+1] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Save writes the table to path atomically via a temp file in the same
// directory
func (t *Table) Save(path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = t.WriteCSV(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move table into place: %w", err)
	}
	return nil
}

// FileName returns <prefix>_<strategy>.csv
func FileName(prefix string, strategy types.Strategy) string {
	return prefix + "_" + string(strategy) + ".csv"
}

// ReadCSV parses a table written by WriteCSV. Paths are not stored in the
// file and come back empty.
func ReadCSV(r io.Reader, strategy types.Strategy) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != LabelColumn {
		return nil, fmt.Errorf("missing %s header", LabelColumn)
	}

	t := New(strategy, len(records[0])-1)
	for line, rec := range records[1:] {
		vec := make([]float32, len(rec)-1)
		for i, cell := range rec[1:] {
			v, err := strconv.ParseFloat(cell, 32)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", line+1, i+1, err)
			}
			vec[i] = float32(v)
		}
		if err := t.Append(Row{Label: rec[0], Vector: vec}); err != nil {
			return nil, fmt.Errorf("row %d: %w", line+1, err)
		}
	}
	return t, nil
}
