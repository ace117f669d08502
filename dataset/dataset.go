// Package dataset reads tabular CSV data into a Frame of named string
// columns and extracts numeric feature matrices from it.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

const utf8BOM = "\ufeff"

// Frame is an in-memory CSV table. Cells are kept as strings until a caller
// asks for a typed view, so label columns and feature columns share one pass
// over the file.
type Frame struct {
	// Source is the path (or name) the frame was read from, used in errors.
	Source  string
	Columns []string
	Rows    [][]string

	index map[string]int
}

// ReadCSV loads the CSV file at path. The first record is the header.
func ReadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataLoadError(path, "open file", err)
	}
	defer f.Close()

	return ParseCSV(f, path)
}

// ParseCSV reads CSV records from r. source names the input in errors.
func ParseCSV(r io.Reader, source string) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewDataLoadError(source, "missing header row", errors.ErrEmptyData)
	}
	if err != nil {
		return nil, errors.NewDataLoadError(source, "parse csv header", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(name, utf8BOM))
	}
	if dup := lo.FindDuplicates(columns); len(dup) > 0 {
		return nil, errors.NewDataLoadColumnError(source, dup[0], 0, "duplicate column in header", nil)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewDataLoadError(source, "parse csv", err)
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, errors.NewDataLoadError(source, "no data rows", errors.ErrEmptyData)
	}

	return NewFrame(source, columns, rows), nil
}

// NewFrame builds a Frame from already split records. Every row must have
// len(columns) cells.
func NewFrame(source string, columns []string, rows [][]string) *Frame {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Frame{Source: source, Columns: columns, Rows: rows, index: index}
}

// NRows returns the number of data rows.
func (f *Frame) NRows() int {
	return len(f.Rows)
}

// HasColumn reports whether the header contains name.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// MissingColumns returns the names in want that the header lacks, in order.
func (f *Frame) MissingColumns(want []string) []string {
	return lo.Filter(want, func(name string, _ int) bool {
		return !f.HasColumn(name)
	})
}

// Column returns the raw cells of the named column.
func (f *Frame) Column(name string) ([]string, bool) {
	j, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return lo.Map(f.Rows, func(row []string, _ int) string {
		return strings.TrimSpace(row[j])
	}), true
}

// Matrix extracts the named columns, in the given order, as an
// NRows×len(features) matrix. A missing column or a cell that is not a
// finite number yields a DataLoadError naming the column and 1-based row.
func (f *Frame) Matrix(features []string) (*mat.Dense, error) {
	if len(features) == 0 {
		return nil, errors.NewDataLoadError(f.Source, "no feature columns requested", nil)
	}
	if missing := f.MissingColumns(features); len(missing) > 0 {
		return nil, errors.NewDataLoadColumnError(f.Source, missing[0], 0, "required column not found", nil)
	}

	cols := lo.Map(features, func(name string, _ int) int { return f.index[name] })
	X := mat.NewDense(len(f.Rows), len(features), nil)
	for i, row := range f.Rows {
		for j, c := range cols {
			cell := strings.TrimSpace(row[c])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.NewDataLoadColumnError(f.Source, features[j], i+1, "value is not numeric", err)
			}
			if err := errors.CheckScalar("dataset.Matrix", v, i+1); err != nil {
				return nil, errors.NewDataLoadColumnError(f.Source, features[j], i+1, "value is not finite", err)
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// Select returns a view of the frame restricted to columns, in that order.
func (f *Frame) Select(columns []string) (*Frame, error) {
	if missing := f.MissingColumns(columns); len(missing) > 0 {
		return nil, errors.NewDataLoadColumnError(f.Source, missing[0], 0, "required column not found", nil)
	}
	rows := lo.Map(f.Rows, func(row []string, _ int) []string {
		return lo.Map(columns, func(name string, _ int) string { return row[f.index[name]] })
	})
	return NewFrame(f.Source, append([]string(nil), columns...), rows), nil
}
