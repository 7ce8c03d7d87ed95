// internal/certlogic/coercion.go
package certlogic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

/*
 * Conversion between Go/JSON values and CertLogic values.
 *
 * Evaluation contexts are built by marshalling Go structs to JSON and
 * decoding the result with UseNumber, so integers survive exactly. FromNative
 * then lifts the decoded tree into Values.
 *
 * Number handling: CertLogic has integers only. Integral floats are accepted
 * (JSON producers sometimes emit 2.0); fractional numbers are a coercion
 * failure.
 *
 * Strings stay Text. Date-times only come into existence through plusTime,
 * which parses its operand explicitly.
 */

// FromJSON decodes JSON bytes into a Value.
func FromJSON(data []byte) (Value, error) {
	native, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return FromNative(native)
}

// FromStruct marshals v to JSON and lifts the result into a Value.
func FromStruct(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return FromJSON(data)
}

// decodeJSON parses JSON keeping numbers as json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return out, nil
}

// FromNative converts a decoded JSON tree into a Value.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		return coerceNumber(t)
	case float64:
		return coerceFloat(t)
	case int:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case time.Time:
		return DateTime{Time: t}, nil
	case []any:
		arr := make(Array, len(t))
		for i, elem := range t {
			cv, err := FromNative(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = cv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, elem := range t {
			cv, err := FromNative(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = cv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrCoercionFailed, v)
	}
}

// coerceNumber accepts integer literals and integral decimals.
func coerceNumber(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoercionFailed, n)
	}
	return coerceFloat(f)
}

func coerceFloat(f float64) (Value, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%w: %v is a non-integer number", ErrCoercionFailed, f)
	}
	return Int(int64(f)), nil
}

// ToNative converts a Value back into plain Go values suitable for json.Marshal.
// DateTimes render in their own offset; date-only values as a bare date.
func ToNative(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Int:
		return int64(t)
	case Text:
		return string(t)
	case DateTime:
		return FormatDateTime(t)
	case Array:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = ToNative(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = ToNative(elem)
		}
		return out
	default:
		return nil
	}
}

// String renders a Value as compact JSON for diagnostics.
// Object keys are sorted by encoding/json.
func String(v Value) string {
	data, err := json.Marshal(ToNative(v))
	if err != nil {
		return fmt.Sprintf("<%s>", v.Kind())
	}
	return string(data)
}

// sortedKeys returns object keys in lexical order for deterministic iteration.
func sortedKeys(o map[string]any) []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
