package value

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Kind identifies the type of a column and of the values stored in it
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInteger
	KindNumber
	KindBigNumber
	KindBoolean
	KindDate
	KindBinary
)

var kindNames = map[Kind]string{
	KindNone:      "None",
	KindString:    "String",
	KindInteger:   "Integer",
	KindNumber:    "Number",
	KindBigNumber: "BigNumber",
	KindBoolean:   "Boolean",
	KindDate:      "Date",
	KindBinary:    "Binary",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a single typed cell of a row. The zero Value is a null of KindNone.
type Value struct {
	kind  Kind
	valid bool
	s     string
	i     int64
	f     float64
	d     decimal.Decimal
	b     bool
	t     time.Time
	bin   []byte
}

// Null returns a null value of the given kind
func Null(kind Kind) Value {
	return Value{kind: kind}
}

func String(s string) Value {
	return Value{kind: KindString, valid: true, s: s}
}

func Integer(i int64) Value {
	return Value{kind: KindInteger, valid: true, i: i}
}

func Number(f float64) Value {
	return Value{kind: KindNumber, valid: true, f: f}
}

func BigNumber(d decimal.Decimal) Value {
	return Value{kind: KindBigNumber, valid: true, d: d}
}

func Boolean(b bool) Value {
	return Value{kind: KindBoolean, valid: true, b: b}
}

func Date(t time.Time) Value {
	return Value{kind: KindDate, valid: true, t: t}
}

func Binary(b []byte) Value {
	return Value{kind: KindBinary, valid: true, bin: b}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return !v.valid
}

func (v Value) Str() string { return v.s }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Decimal() decimal.Decimal { return v.d }
func (v Value) Bool() bool { return v.b }
func (v Value) Time() time.Time { return v.t }
func (v Value) Bytes() []byte { return v.bin }

// Interface returns the Go representation of the value, suitable for JSON
// encoding. Nulls return nil.
func (v Value) Interface() interface{} {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return v.i
	case KindNumber:
		return v.f
	case KindBigNumber:
		return v.d.String()
	case KindBoolean:
		return v.b
	case KindDate:
		return v.t
	case KindBinary:
		return v.bin
	}
	return nil
}

func (v Value) String() string {
	if !v.valid {
		return "<null>"
	}
	switch v.kind {
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	case KindBinary:
		return fmt.Sprintf("%x", v.bin)
	}
	return fmt.Sprint(v.Interface())
}

// Compare orders v against other and returns -1, 0 or 1. Nulls sort before
// any non-null value and are equal to each other. caseSensitive only applies
// to KindString; values of different kinds are ordered by kind. NaN sorts
// above every other number and equals only itself.
func (v Value) Compare(other Value, caseSensitive bool) int {
	return compare(v, other, caseSensitive, nil)
}

// Comparer compares values with a case folder that is built once. It is not
// safe for concurrent use.
type Comparer struct {
	fold cases.Caser
}

// NewComparer returns a Comparer ready for use
func NewComparer() *Comparer {
	return &Comparer{fold: cases.Fold()}
}

// Compare orders a against b the same way as Value.Compare
func (c *Comparer) Compare(a, b Value, caseSensitive bool) int {
	return compare(a, b, caseSensitive, &c.fold)
}

func compare(v, other Value, caseSensitive bool, fold *cases.Caser) int {
	if !v.valid || !other.valid {
		switch {
		case !v.valid && !other.valid:
			return 0
		case !v.valid:
			return -1
		default:
			return 1
		}
	}
	if v.kind != other.kind {
		return compareOrdered(v.kind, other.kind)
	}

	switch v.kind {
	case KindString:
		if caseSensitive {
			return strings.Compare(v.s, other.s)
		}
		if fold == nil {
			f := cases.Fold()
			fold = &f
		}
		return strings.Compare(fold.String(v.s), fold.String(other.s))
	case KindInteger:
		return compareOrdered(v.i, other.i)
	case KindNumber:
		return compareFloat(v.f, other.f)
	case KindBigNumber:
		return v.d.Cmp(other.d)
	case KindBoolean:
		switch {
		case v.b == other.b:
			return 0
		case !v.b:
			return -1
		default:
			return 1
		}
	case KindDate:
		switch {
		case v.t.Before(other.t):
			return -1
		case v.t.After(other.t):
			return 1
		}
		return 0
	case KindBinary:
		return bytes.Compare(v.bin, other.bin)
	}
	return 0
}

// compareFloat is a total order: -0 sorts before +0 and NaN sorts last
func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if a == b && a == 0 {
		return compareOrdered(boolRank(!math.Signbit(a)), boolRank(!math.Signbit(b)))
	}
	return compareOrdered(a, b)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T ~int | ~int64 | ~float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
