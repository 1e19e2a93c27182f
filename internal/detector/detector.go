// Package detector implements the "detect change in row" stage: it watches a
// set of fields and emits a row, augmented with per-field change flags, a
// rows-since-last-change counter and optional old values, each time one of
// the watched fields differs from the row it is compared against.
package detector

import (
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/row"
	"mysql-rowchange/internal/value"
)

const (
	ChangedSuffix        = "_changed"
	LastValueSuffix      = "_last"
	RowsSinceChangeField = "rows_since_last_change"
)

// Emission is an output row together with the schema it conforms to
type Emission struct {
	Schema *row.Schema
	Row    row.Row
}

// Stats counts rows seen by a detector
type Stats struct {
	RowsRead    int64
	RowsEmitted int64
}

// Option configures a Detector
type Option func(*Detector)

// WithFeedbackSize logs progress every n rows read. Zero disables it.
func WithFeedbackSize(n int64) Option {
	return func(d *Detector) {
		d.feedbackSize = n
	}
}

// runState is everything that changes during a run
type runState struct {
	inputLen        int
	positions       []int
	outputSchema    *row.Schema
	previous        row.Row
	rowsSinceChange int64
	tracked         []value.Value
}

// Detector is the stateful per-stream change detector. A Detector must only
// be driven from one goroutine; independent streams need their own instance.
type Detector struct {
	meta         *Meta
	logger       *logrus.Logger
	feedbackSize int64
	cmp          *value.Comparer

	state *runState
	err   error
	stats Stats
}

// New creates a detector for the given configuration
func New(meta *Meta, logger *logrus.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Detector{
		meta:   meta,
		logger: logger,
		cmp:    value.NewComparer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Established reports whether the first row has been processed
func (d *Detector) Established() bool {
	return d.state != nil
}

// OutputSchema returns the schema of emitted rows, or nil before the first row
func (d *Detector) OutputSchema() *row.Schema {
	if d.state == nil {
		return nil
	}
	return d.state.outputSchema
}

func (d *Detector) Stats() Stats {
	return d.stats
}

// ProcessRow consumes the next input row. It returns a non-nil Emission only
// when at least one watched field changed. The first row establishes the
// comparison baseline and never emits.
func (d *Detector) ProcessRow(schema *row.Schema, r row.Row) (*Emission, error) {
	if d.err != nil {
		return nil, d.err
	}

	d.stats.RowsRead++
	d.feedback()

	if d.state == nil {
		if err := d.establish(schema, r); err != nil {
			d.err = err
			return nil, err
		}
		return nil, nil
	}

	st := d.state
	if len(r) != st.inputLen {
		return nil, &RowShapeError{Want: st.inputLen, Got: len(r)}
	}

	numFields := d.meta.FieldCount()
	out := make(row.Row, st.outputSchema.Len())
	copy(out, r)

	changed := false
	st.rowsSinceChange++

	j := 0
	for i := 0; i < numFields; i++ {
		f := d.meta.FieldAt(i)
		pos := st.positions[i]
		if d.cmp.Compare(st.previous[pos], r[pos], f.CaseSensitive) != 0 {
			changed = true
			out[st.inputLen+i] = value.Boolean(true)
		} else {
			out[st.inputLen+i] = value.Boolean(false)
		}
		if f.KeepOldValue {
			st.tracked[j] = st.previous[pos]
			j++
		}
	}

	if !changed {
		return nil, nil
	}

	counterPos := st.inputLen + numFields
	out[counterPos] = value.Integer(st.rowsSinceChange)
	copy(out[counterPos+1:], st.tracked)

	st.previous = r.Clone()
	st.rowsSinceChange = 0
	d.stats.RowsEmitted++

	return &Emission{Schema: st.outputSchema, Row: out}, nil
}

// establish resolves watched fields and derives the output schema
func (d *Detector) establish(schema *row.Schema, r row.Row) error {
	if len(r) != schema.Len() {
		return &RowShapeError{Want: schema.Len(), Got: len(r)}
	}

	numFields := d.meta.FieldCount()
	positions := make([]int, numFields)
	columns := make([]row.Column, 0, schema.Len()+numFields+1+d.meta.CountRetainedFields())
	columns = append(columns, schema.Columns()...)

	var lastColumns []row.Column
	for i := 0; i < numFields; i++ {
		f := d.meta.FieldAt(i)
		pos := schema.IndexOf(f.Name)
		if pos < 0 {
			return &FieldNotFoundError{Field: f.Name}
		}
		col := schema.Column(pos)
		if col.Kind == value.KindNone {
			return &FieldTypeUnresolvedError{Field: f.Name}
		}
		positions[i] = pos

		columns = append(columns, row.Column{Name: col.Name + ChangedSuffix, Kind: value.KindBoolean})
		if f.KeepOldValue {
			lastColumns = append(lastColumns, row.Column{Name: col.Name + LastValueSuffix, Kind: col.Kind})
		}
	}
	columns = append(columns, row.Column{Name: RowsSinceChangeField, Kind: value.KindInteger})
	columns = append(columns, lastColumns...)

	d.state = &runState{
		inputLen:     schema.Len(),
		positions:    positions,
		outputSchema: row.NewSchema(columns...),
		previous:     r.Clone(),
		tracked:      make([]value.Value, d.meta.CountRetainedFields()),
	}

	d.logger.Debugf("Established change detection on %d fields, output has %d columns",
		numFields, d.state.outputSchema.Len())
	return nil
}

func (d *Detector) feedback() {
	if d.feedbackSize > 0 && d.stats.RowsRead%d.feedbackSize == 0 {
		d.logger.Infof("Detect row change: %d rows read, %d rows emitted", d.stats.RowsRead, d.stats.RowsEmitted)
	}
}
