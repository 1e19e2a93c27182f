package detector

import (
	"fmt"

	"mysql-rowchange/internal/row"
)

// FieldSpec describes one watched field
type FieldSpec struct {
	Name          string
	CaseSensitive bool // only meaningful for string columns
	KeepOldValue  bool // emit the field's previous value as <name>_last
}

// Meta is the per-run configuration of a detector. It is not modified after
// construction.
type Meta struct {
	fields []FieldSpec
}

// NewMeta returns a Meta watching the given fields in order
func NewMeta(fields ...FieldSpec) *Meta {
	fs := make([]FieldSpec, len(fields))
	copy(fs, fields)
	return &Meta{fields: fs}
}

// FieldCount returns the number of watched fields
func (m *Meta) FieldCount() int {
	return len(m.fields)
}

// FieldAt returns the i-th watched field
func (m *Meta) FieldAt(i int) FieldSpec {
	return m.fields[i]
}

// Fields returns a copy of the watched field list
func (m *Meta) Fields() []FieldSpec {
	fs := make([]FieldSpec, len(m.fields))
	copy(fs, m.fields)
	return fs
}

// CountRetainedFields returns how many fields keep their old value
func (m *Meta) CountRetainedFields() int {
	n := 0
	for _, f := range m.fields {
		if f.KeepOldValue {
			n++
		}
	}
	return n
}

// RemarkLevel grades a configuration advisory
type RemarkLevel int

const (
	RemarkOK RemarkLevel = iota
	RemarkWarning
	RemarkError
)

func (l RemarkLevel) String() string {
	switch l {
	case RemarkOK:
		return "ok"
	case RemarkWarning:
		return "warning"
	case RemarkError:
		return "error"
	}
	return fmt.Sprintf("RemarkLevel(%d)", int(l))
}

// Remark is an advisory about a configuration, meant for whoever wrote it.
// Remarks never stop a run.
type Remark struct {
	Level   RemarkLevel
	Message string
}

// Check inspects the configuration against the input schema, if known, and
// returns advisories. A nil input means the schema is not known yet.
func (m *Meta) Check(input *row.Schema) []Remark {
	var remarks []Remark

	if len(m.fields) == 0 {
		remarks = append(remarks, Remark{RemarkWarning, "no fields are watched, no change will ever be detected"})
	}

	seen := make(map[string]bool, len(m.fields))
	for _, f := range m.fields {
		if seen[f.Name] {
			remarks = append(remarks, Remark{RemarkWarning, fmt.Sprintf("field %q is watched more than once", f.Name)})
		}
		seen[f.Name] = true
	}

	if input == nil {
		return remarks
	}
	if input.Len() == 0 {
		remarks = append(remarks, Remark{RemarkWarning, "input is not receiving any fields"})
		return remarks
	}
	remarks = append(remarks, Remark{RemarkOK, fmt.Sprintf("input is receiving %d fields", input.Len())})

	for _, f := range m.fields {
		if input.IndexOf(f.Name) < 0 {
			remarks = append(remarks, Remark{RemarkError, fmt.Sprintf("watched field %q not found in input", f.Name)})
		}
	}
	return remarks
}
