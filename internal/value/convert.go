package value

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// Convert coerces a raw driver value into a Value of the given kind. nil
// always converts to a null of that kind.
func Convert(kind Kind, raw interface{}) (Value, error) {
	if raw == nil {
		return Null(kind), nil
	}

	switch kind {
	case KindString:
		switch v := raw.(type) {
		case string:
			return String(v), nil
		case []byte:
			return String(string(v)), nil
		default:
			return String(fmt.Sprint(v)), nil
		}

	case KindInteger:
		if i, ok := toInt64(raw); ok {
			return Integer(i), nil
		}
		if s, ok := toString(raw); ok {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("failed to parse integer %q: %w", s, err)
			}
			return Integer(i), nil
		}

	case KindNumber:
		switch v := raw.(type) {
		case float64:
			return Number(v), nil
		case float32:
			return Number(float64(v)), nil
		case uint64:
			return Number(float64(v)), nil
		case decimal.Decimal:
			f, _ := v.Float64()
			return Number(f), nil
		}
		if i, ok := toInt64(raw); ok {
			return Number(float64(i)), nil
		}
		if s, ok := toString(raw); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("failed to parse number %q: %w", s, err)
			}
			return Number(f), nil
		}

	case KindBigNumber:
		switch v := raw.(type) {
		case decimal.Decimal:
			return BigNumber(v), nil
		case float64:
			return BigNumber(decimal.NewFromFloat(v)), nil
		case float32:
			return BigNumber(decimal.NewFromFloat(float64(v))), nil
		case uint64:
			return BigNumber(decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)), nil
		}
		if i, ok := toInt64(raw); ok {
			return BigNumber(decimal.New(i, 0)), nil
		}
		if s, ok := toString(raw); ok {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return Value{}, fmt.Errorf("failed to parse decimal %q: %w", s, err)
			}
			return BigNumber(d), nil
		}

	case KindBoolean:
		if b, ok := raw.(bool); ok {
			return Boolean(b), nil
		}
		if i, ok := toInt64(raw); ok {
			return Boolean(i != 0), nil
		}
		if s, ok := toString(raw); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return Value{}, fmt.Errorf("failed to parse boolean %q: %w", s, err)
			}
			return Boolean(b), nil
		}

	case KindDate:
		if t, ok := raw.(time.Time); ok {
			return Date(t), nil
		}
		if s, ok := toString(raw); ok {
			// MySQL zero dates have no time.Time equivalent
			if strings.HasPrefix(s, "0000-00-00") {
				return Null(KindDate), nil
			}
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return Date(t), nil
				}
			}
			return Value{}, fmt.Errorf("failed to parse date %q", s)
		}

	case KindBinary:
		switch v := raw.(type) {
		case []byte:
			return Binary(v), nil
		case string:
			return Binary([]byte(v)), nil
		}
	}

	return Value{}, fmt.Errorf("cannot convert %T to %s", raw, kind)
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
