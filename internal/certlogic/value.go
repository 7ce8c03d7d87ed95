// internal/certlogic/value.go
package certlogic

import (
	"time"
)

/*
 * Typed values for CertLogic evaluation.
 *
 * Value is a closed sum type: only the seven variants below implement it.
 * Every operator returns exactly one variant. Truthiness is defined per
 * variant and DateTime is deliberately neither truthy nor falsy; it can only
 * be compared.
 *
 * Variants:
 *   - Null: absent or JSON null
 *   - Bool, Int, Text: JSON scalars (numbers are 64-bit integers only)
 *   - Array, Object: JSON containers holding Values
 *   - DateTime: an instant plus its source offset and date-only precision
 */

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindText
	KindArray
	KindObject
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindDateTime:
		return "date-time"
	default:
		return "unknown"
	}
}

// Value is one CertLogic value.
type Value interface {
	Kind() Kind
}

type (
	Null   struct{}
	Bool   bool
	Int    int64
	Text   string
	Array  []Value
	Object map[string]Value
)

// DateTime is an instant carrying its source offset in Time.Location().
// DateOnly marks values parsed from or derived from a bare calendar date.
type DateTime struct {
	Time     time.Time
	DateOnly bool
}

func (Null) Kind() Kind     { return KindNull }
func (Bool) Kind() Kind     { return KindBool }
func (Int) Kind() Kind      { return KindInt }
func (Text) Kind() Kind     { return KindText }
func (Array) Kind() Kind    { return KindArray }
func (Object) Kind() Kind   { return KindObject }
func (DateTime) Kind() Kind { return KindDateTime }

// IsTruthy reports whether v counts as true in a condition.
func IsTruthy(v Value) bool {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case Int:
		return t != 0
	case Text:
		return t != ""
	case Array:
		return len(t) > 0
	case Object:
		return len(t) > 0
	default:
		return false
	}
}

// IsFalsy reports whether v counts as false in a condition.
// DateTime is neither truthy nor falsy.
func IsFalsy(v Value) bool {
	switch t := v.(type) {
	case nil, Null:
		return true
	case Bool:
		return !bool(t)
	case Int:
		return t == 0
	case Text:
		return t == ""
	case Array:
		return len(t) == 0
	case Object:
		return len(t) == 0
	default:
		return false
	}
}

// Equal is type-strict deep equality. DateTimes compare as instants.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Text:
		return av == b.(Text)
	case DateTime:
		return av.Time.Equal(b.(DateTime).Time)
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
