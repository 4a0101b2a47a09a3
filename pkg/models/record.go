// Package models provides the in-memory data model shared by the extractor
// and the staging serializer.
//
// A Dataset has no schema known at compile time: the column set is whatever
// the extraction query returned, in result-set order, and every row holds one
// dynamically typed value per column (nil for SQL NULL).
package models

import (
	"fmt"
)

// Dataset is an ordered, uniformly shaped table held fully in memory
type Dataset struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// NewDataset creates an empty dataset with the given column names
func NewDataset(columns ...string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols}
}

// Append adds a row. The row must have one value per column.
func (d *Dataset) Append(values ...interface{}) error {
	if len(values) != len(d.Columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(values), len(d.Columns))
	}
	row := make([]interface{}, len(values))
	copy(row, values)
	d.Rows = append(d.Rows, row)
	return nil
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Empty reports whether the dataset holds no rows
func (d *Dataset) Empty() bool {
	return d.Len() == 0
}

// Record returns row i as a column-name keyed map
func (d *Dataset) Record(i int) map[string]interface{} {
	rec := make(map[string]interface{}, len(d.Columns))
	for j, c := range d.Columns {
		rec[c] = d.Rows[i][j]
	}
	return rec
}
