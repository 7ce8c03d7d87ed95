// internal/certlogic/operators.go
package certlogic

import (
	"fmt"
	"regexp"
	"strings"
)

/*
 * Operator table and the value-level semantics of each operator.
 *
 * Operators never fail on ill-typed data: a comparison between an Int and a
 * DateTime, addition of text, or a malformed UVCI all evaluate to Null. Only
 * the program shape (operator name, operand count) can be wrong, and that is
 * rejected before evaluation.
 *
 * Comparisons with three operands are chained: (a < b < c) holds when both
 * a < b and b < c hold. The date operators are the same comparisons
 * restricted to DateTime operands. A bare date is a local calendar day, so
 * against a zoned operand it starts at that operand's midnight.
 */

// arity bounds the operand count of an operator. max < 0 means unbounded.
type arity struct {
	min, max int
}

func (a arity) accepts(n int) bool {
	return n >= a.min && (a.max < 0 || n <= a.max)
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d", a.min)
	case a.min == a.max:
		return fmt.Sprintf("exactly %d", a.min)
	default:
		return fmt.Sprintf("%d to %d", a.min, a.max)
	}
}

var operatorArity = map[string]arity{
	"if":              {3, 3},
	"and":             {2, -1},
	"===":             {2, 2},
	"in":              {2, 2},
	"+":               {2, 2},
	"!":               {1, 1},
	">":               {2, 3},
	"<":               {2, 3},
	">=":              {2, 3},
	"<=":              {2, 3},
	"after":           {2, 3},
	"before":          {2, 3},
	"not-after":       {2, 3},
	"not-before":      {2, 3},
	"plusTime":        {3, 3},
	"reduce":          {3, 3},
	"extractFromUVCI": {2, 2},
}

// dateOperators maps the date comparison operators to their ordering.
var dateOperators = map[string]string{
	"after":      ">",
	"before":     "<",
	"not-after":  "<=",
	"not-before": ">=",
}

// IsOperator reports whether name is a known operator (including var).
func IsOperator(name string) bool {
	if name == "var" {
		return true
	}
	_, ok := operatorArity[name]
	return ok
}

// compareChain applies a comparison to consecutive operand pairs. All
// operands must be Ints, or all DateTimes when dateOnly is set or the first
// operand is a DateTime. Anything else yields Null.
func compareChain(op string, operands []Value, dateOnly bool) Value {
	first := operands[0]
	switch first.(type) {
	case Int:
		if dateOnly {
			return Null{}
		}
	case DateTime:
	default:
		return Null{}
	}

	for _, v := range operands[1:] {
		if v.Kind() != first.Kind() {
			return Null{}
		}
	}

	for i := 0; i+1 < len(operands); i++ {
		if !ordered(op, compareValues(operands[i], operands[i+1])) {
			return Bool(false)
		}
	}
	return Bool(true)
}

// compareValues returns -1, 0 or 1. Both values have the same kind. A bare
// date compared with a zoned DateTime is taken at midnight in that zone.
func compareValues(a, b Value) int {
	switch av := a.(type) {
	case Int:
		bv := b.(Int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case DateTime:
		bv := b.(DateTime)
		switch {
		case av.DateOnly && !bv.DateOnly:
			av = av.AnchorIn(bv.Time.Location())
		case bv.DateOnly && !av.DateOnly:
			bv = bv.AnchorIn(av.Time.Location())
		}
		return av.Time.Compare(bv.Time)
	}
	return 0
}

func ordered(op string, cmp int) bool {
	switch op {
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	}
	return false
}

// contains tests array membership or substring containment.
func contains(needle, haystack Value) Value {
	switch h := haystack.(type) {
	case Array:
		for _, elem := range h {
			if Equal(needle, elem) {
				return Bool(true)
			}
		}
		return Bool(false)
	case Text:
		n, ok := needle.(Text)
		if !ok {
			return Bool(false)
		}
		return Bool(strings.Contains(string(h), string(n)))
	default:
		return Bool(false)
	}
}

// plus adds two Ints.
func plus(a, b Value) Value {
	x, ok1 := a.(Int)
	y, ok2 := b.(Int)
	if !ok1 || !ok2 {
		return Null{}
	}
	return x + y
}

// negate negates by truthiness. DateTime has no truth value.
func negate(v Value) Value {
	switch {
	case IsTruthy(v):
		return Bool(false)
	case IsFalsy(v):
		return Bool(true)
	default:
		return Null{}
	}
}

// plusTime shifts a date-time given as DateTime or ISO text.
func plusTime(dt, amount, unit Value) Value {
	var d DateTime
	switch t := dt.(type) {
	case DateTime:
		d = t
	case Text:
		parsed, err := ParseDateTime(string(t))
		if err != nil {
			return Null{}
		}
		d = parsed
	default:
		return Null{}
	}

	n, ok := amount.(Int)
	if !ok {
		return Null{}
	}
	name, ok := unit.(Text)
	if !ok {
		return Null{}
	}
	u, ok := ParseTimeUnit(string(name))
	if !ok {
		return Null{}
	}
	return PlusTime(d, int64(n), u)
}

const uvciPrefix = "URN:UVCI:"

var uvciSeparators = regexp.MustCompile(`[/#:]`)

// ExtractFromUVCI returns fragment index of a UVCI after stripping the
// optional URN prefix, or false when there is no such fragment.
func ExtractFromUVCI(uvci string, index int64) (string, bool) {
	rest := strings.TrimPrefix(uvci, uvciPrefix)
	fragments := uvciSeparators.Split(rest, -1)
	if index < 0 || index >= int64(len(fragments)) {
		return "", false
	}
	return fragments[index], true
}

func extractFromUVCI(uvci, index Value) Value {
	s, ok := uvci.(Text)
	if !ok {
		return Null{}
	}
	i, ok := index.(Int)
	if !ok {
		return Null{}
	}
	fragment, ok := ExtractFromUVCI(string(s), int64(i))
	if !ok {
		return Null{}
	}
	return Text(fragment)
}
