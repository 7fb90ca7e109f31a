package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCoercion is returned when a value cannot be converted to the declared type
var ErrCoercion = errors.New("catalog: value cannot be coerced")

// ValueShape is what a raw trait value looks like on first sight
type ValueShape int

const (
	ValueShapeUnsupported ValueShape = iota
	ValueShapeString
	ValueShapeBoolean
	ValueShapeInteger
	ValueShapeFloat
)

// String returns the shape name
func (s ValueShape) String() string {
	switch s {
	case ValueShapeString:
		return "string"
	case ValueShapeBoolean:
		return "boolean"
	case ValueShapeInteger:
		return "integer"
	case ValueShapeFloat:
		return "float"
	default:
		return "unsupported"
	}
}

// ValueType maps a supported shape to the type a new definition gets
func (s ValueShape) ValueType() (ValueType, bool) {
	switch s {
	case ValueShapeString:
		return ValueTypeString, true
	case ValueShapeBoolean:
		return ValueTypeBoolean, true
	case ValueShapeInteger:
		return ValueTypeInteger, true
	case ValueShapeFloat:
		return ValueTypeFloat, true
	default:
		return "", false
	}
}

// ClassifyValue infers the shape of a decoded JSON value. Numbers decoded with
// UseNumber are Integer when they parse as int64, Float otherwise. Nil, objects
// and arrays are unsupported.
func ClassifyValue(v any) ValueShape {
	switch val := v.(type) {
	case nil:
		return ValueShapeUnsupported
	case string:
		return ValueShapeString
	case bool:
		return ValueShapeBoolean
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return ValueShapeInteger
		}
		if _, err := val.Float64(); err == nil {
			return ValueShapeFloat
		}
		return ValueShapeUnsupported
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ValueShapeInteger
	case float32, float64, decimal.Decimal:
		return ValueShapeFloat
	default:
		return ValueShapeUnsupported
	}
}

var (
	trueStrings  = map[string]bool{"True": true, "true": true, "TRUE": true, "T": true, "1": true}
	falseStrings = map[string]bool{"False": true, "false": true, "FALSE": true, "F": true, "0": true}
)

// Coerce converts v to the Go representation of t:
// string, bool, float64 or int64.
func Coerce(t ValueType, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrCoercion)
	}
	if ClassifyValue(v) == ValueShapeUnsupported {
		return nil, fmt.Errorf("%w: unsupported value %T", ErrCoercion, v)
	}
	switch t {
	case ValueTypeString:
		return coerceString(v), nil
	case ValueTypeBoolean:
		return coerceBool(v)
	case ValueTypeFloat:
		return coerceFloat(v)
	case ValueTypeInteger:
		return coerceInt(v)
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", ErrCoercion, t)
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case json.Number:
		return val.String()
	case decimal.Decimal:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

func coerceBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		if trueStrings[s] {
			return true, nil
		}
		if falseStrings[s] {
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a boolean", ErrCoercion, val)
	default:
		f, err := coerceFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}

func coerceFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCoercion, err)
		}
		return f, nil
	case decimal.Decimal:
		return val.InexactFloat64(), nil
	case uint:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrCoercion, val)
		}
		return f, nil
	case bool:
		return 0, fmt.Errorf("%w: boolean is not a number", ErrCoercion)
	default:
		i, ok := asInt64(v)
		if !ok {
			return 0, fmt.Errorf("%w: unsupported value %T", ErrCoercion, v)
		}
		return float64(i), nil
	}
}

func coerceInt(v any) (int64, error) {
	if i, ok := asInt64(v); ok {
		return i, nil
	}
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, nil
		}
	case bool:
		return 0, fmt.Errorf("%w: boolean is not an integer", ErrCoercion)
	}
	f, err := coerceFloat(v)
	if err != nil {
		return 0, err
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v is not integral", ErrCoercion, f)
	}
	return int64(f), nil
}

func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	default:
		return 0, false
	}
}
