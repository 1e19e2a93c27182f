package detector

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sirupsen/logrus/hooks/test"

	"mysql-rowchange/internal/row"
	"mysql-rowchange/internal/value"
)

var letters = []string{"a", "A", "b", "B"}

var propertySchema = row.NewSchema(
	row.Column{Name: "seq", Kind: value.KindInteger},
	row.Column{Name: "num", Kind: value.KindInteger},
	row.Column{Name: "code", Kind: value.KindString},
)

var propertyFields = []FieldSpec{
	{Name: "num", CaseSensitive: true, KeepOldValue: true},
	{Name: "code", CaseSensitive: false, KeepOldValue: true},
}

// rowsFrom turns generated ints into rows: x/4 drives "num", x%4 picks a
// letter for "code" so case-only differences show up often.
func rowsFrom(xs []int) []row.Row {
	rows := make([]row.Row, len(xs))
	for i, x := range xs {
		rows[i] = row.Row{
			value.Integer(int64(i)),
			value.Integer(int64(x / 4)),
			value.String(letters[x%4]),
		}
	}
	return rows
}

// expectedEmissions is a straightforward model of the detector
func expectedEmissions(rows []row.Row) []row.Row {
	var out []row.Row
	if len(rows) == 0 {
		return out
	}
	baseline := rows[0]
	var counter int64
	for _, cur := range rows[1:] {
		counter++
		numChanged := baseline[1].Int() != cur[1].Int()
		codeChanged := !strings.EqualFold(baseline[2].Str(), cur[2].Str())
		if !numChanged && !codeChanged {
			continue
		}
		emitted := append(cur.Clone(),
			value.Boolean(numChanged),
			value.Boolean(codeChanged),
			value.Integer(counter),
			baseline[1],
			baseline[2],
		)
		out = append(out, emitted)
		baseline = cur
		counter = 0
	}
	return out
}

func runDetector(rows []row.Row) ([]row.Row, *row.Schema, error) {
	logger, _ := test.NewNullLogger()
	d := New(NewMeta(propertyFields...), logger)
	sink := &CollectSink{}
	err := d.Run(context.Background(), &SliceSource{Schema: propertySchema, Rows: rows}, sink)
	return sink.Rows, d.OutputSchema(), err
}

func TestProperty_DetectRowChange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("first row never emits", prop.ForAll(
		func(x int) bool {
			logger, _ := test.NewNullLogger()
			d := New(NewMeta(propertyFields...), logger)
			em, err := d.ProcessRow(propertySchema, rowsFrom([]int{x})[0])
			return err == nil && em == nil && d.Established()
		},
		gen.IntRange(0, 15),
	))

	properties.Property("emissions match the reference model", prop.ForAll(
		func(xs []int) bool {
			rows := rowsFrom(xs)
			got, _, err := runDetector(rows)
			if err != nil {
				return false
			}
			want := expectedEmissions(rows)
			if len(got) == 0 && len(want) == 0 {
				return true
			}
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.Property("counters account for every row after the first", prop.ForAll(
		func(xs []int) bool {
			rows := rowsFrom(xs)
			got, _, err := runDetector(rows)
			if err != nil {
				return false
			}
			counterPos := propertySchema.Len() + len(propertyFields)
			lastSeq := int64(0)
			for _, r := range got {
				seq := r[0].Int()
				if r[counterPos].Int() != seq-lastSeq {
					return false
				}
				lastSeq = seq
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.Property("replay through a fresh detector is identical", prop.ForAll(
		func(xs []int) bool {
			rows := rowsFrom(xs)
			first, schema1, err1 := runDetector(rows)
			second, schema2, err2 := runDetector(rows)
			return err1 == nil && err2 == nil &&
				reflect.DeepEqual(first, second) &&
				reflect.DeepEqual(schema1, schema2)
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.Property("emitted rows always have the output schema width", prop.ForAll(
		func(xs []int) bool {
			rows := rowsFrom(xs)
			got, schema, err := runDetector(rows)
			if err != nil {
				return false
			}
			for _, r := range got {
				if len(r) != schema.Len() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.TestingRun(t)
}
