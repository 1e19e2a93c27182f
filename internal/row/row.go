// Package row holds the schema and row representation shared by the binlog
// processor and the change detector.
package row

import (
	"mysql-rowchange/internal/value"
)

// Column describes one column of a row
type Column struct {
	// Name is the column name as reported by the source table
	Name string `json:"name"`

	// Kind is the value type stored in the column
	Kind value.Kind `json:"kind"`
}

// Schema is an ordered list of columns
type Schema struct {
	columns []Column
}

// NewSchema returns a schema holding a copy of columns
func NewSchema(columns ...Column) *Schema {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Schema{columns: cols}
}

// Len returns the number of columns
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.columns)
}

// Column returns the column at position i
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Columns returns a copy of the column list
func (s *Schema) Columns() []Column {
	if s == nil {
		return nil
	}
	cols := make([]Column, len(s.columns))
	copy(cols, s.columns)
	return cols
}

// Names returns the column names in order
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// IndexOf returns the position of the column with the given name, or -1
func (s *Schema) IndexOf(name string) int {
	if s == nil {
		return -1
	}
	for i, c := range s.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is an ordered, fixed-arity sequence of values matching a Schema
type Row []value.Value

// Clone returns a shallow copy of the row's value slots
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	copy(c, r)
	return c
}
