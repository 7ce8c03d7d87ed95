// internal/certlogic/evaluate_test.go
package certlogic

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// evalJSON parses expr and data and returns the compact JSON of the result.
func evalJSON(t *testing.T, expr, data string) string {
	t.Helper()
	e, err := Parse([]byte(expr))
	if err != nil {
		t.Fatalf("Parse(%s) error = %v, want nil", expr, err)
	}
	d, err := FromJSON([]byte(data))
	if err != nil {
		t.Fatalf("FromJSON(%s) error = %v, want nil", data, err)
	}
	v, err := Evaluate(e, d)
	if err != nil {
		t.Fatalf("Evaluate(%s) error = %v, want nil", expr, err)
	}
	return String(v)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		data string
		want string
	}{
		// literals and var
		{"int literal", `42`, `{}`, `42`},
		{"array literal", `[1, {"var": "a"}]`, `{"a": "x"}`, `[1,"x"]`},
		{"var empty path returns data", `{"var": ""}`, `{"a": 1}`, `{"a":1}`},
		{"var nested", `{"var": "payload.v.0.dn"}`, `{"payload": {"v": [{"dn": 2}]}}`, `2`},
		{"var missing", `{"var": "payload.t.0.tt"}`, `{"payload": {"t": null}}`, `null`},
		{"var index out of range", `{"var": "a.5"}`, `{"a": [1, 2]}`, `null`},
		{"var index on object", `{"var": "a.0"}`, `{"a": {"b": 1}}`, `null`},
		{"var through scalar", `{"var": "a.b"}`, `{"a": 3}`, `null`},

		// if
		{"if truthy", `{"if": [{"var": "a"}, "yes", "no"]}`, `{"a": [0]}`, `"yes"`},
		{"if falsy", `{"if": [{"var": "a"}, "yes", "no"]}`, `{"a": ""}`, `"no"`},
		{"if date-time guard", `{"if": [{"plusTime": ["2021-01-01", 0, "day"]}, "yes", "no"]}`, `{}`, `null`},

		// and
		{"and all truthy", `{"and": [true, 1, "x"]}`, `{}`, `true`},
		{"and one falsy", `{"and": [true, 0, "x"]}`, `{}`, `false`},
		{"and missing var", `{"and": [true, {"var": "nope"}]}`, `{}`, `false`},

		// ===
		{"equal ints", `{"===": [1, 1]}`, `{}`, `true`},
		{"equal is type strict", `{"===": [1, "1"]}`, `{}`, `false`},
		{"equal arrays", `{"===": [[1, "a"], {"var": "xs"}]}`, `{"xs": [1, "a"]}`, `true`},
		{"equal null", `{"===": [{"var": "x"}, {"var": "y"}]}`, `{}`, `true`},

		// comparisons
		{"greater chained", `{">": [3, 2, 1]}`, `{}`, `true`},
		{"greater chained not monotonic", `{">": [3, 2, 3]}`, `{}`, `false`},
		{"less", `{"<": [1, 2]}`, `{}`, `true`},
		{"less or equal chained", `{"<=": [1, 1, 2]}`, `{}`, `true`},
		{"greater or equal", `{">=": [1, 2]}`, `{}`, `false`},
		{"mixed kinds", `{">": [1, "a"]}`, `{}`, `null`},
		{"null operand", `{"<": [{"var": "x"}, 2]}`, `{}`, `null`},
		{"date-times compare", `{">": [{"plusTime": ["2021-01-02", 0, "day"]}, {"plusTime": ["2021-01-01", 0, "day"]}]}`, `{}`, `true`},

		// date operators
		{"after", `{"after": [{"plusTime": ["2021-01-02", 0, "day"]}, {"plusTime": ["2021-01-01", 0, "day"]}]}`, `{}`, `true`},
		{"before", `{"before": [{"plusTime": ["2021-01-02", 0, "day"]}, {"plusTime": ["2021-01-01", 0, "day"]}]}`, `{}`, `false`},
		{"not-after equal", `{"not-after": [{"plusTime": ["2021-01-01T00:00:00Z", 0, "day"]}, {"plusTime": ["2021-01-01", 0, "day"]}]}`, `{}`, `true`},
		{"not-before chained", `{"not-before": [{"plusTime": ["2021-01-03", 0, "day"]}, {"plusTime": ["2021-01-02", 0, "day"]}, {"plusTime": ["2021-01-02", 0, "day"]}]}`, `{}`, `true`},
		{"bare date starts at midnight of the clock zone", `{"not-before": [{"plusTime": ["2021-06-15T00:30:00+02:00", 0, "hour"]}, {"plusTime": ["2021-06-15", 0, "day"]}]}`, `{}`, `true`},
		{"bare date before local midnight", `{"before": [{"plusTime": ["2021-06-14T23:30:00+02:00", 0, "hour"]}, {"plusTime": ["2021-06-15", 0, "day"]}]}`, `{}`, `true`},
		{"bare date anchored on either side", `{"after": [{"plusTime": ["2021-06-16", 0, "day"]}, {"plusTime": ["2021-06-15T23:30:00-05:00", 0, "hour"]}]}`, `{}`, `true`},
		{"date operator on ints", `{"after": [2, 1]}`, `{}`, `null`},
		{"date operator on text", `{"after": ["2021-01-02", "2021-01-01"]}`, `{}`, `null`},

		// in
		{"in array", `{"in": ["EU/1/20/1528", {"var": "vs"}]}`, `{"vs": ["EU/1/20/1507", "EU/1/20/1528"]}`, `true`},
		{"not in array", `{"in": ["X", {"var": "vs"}]}`, `{"vs": ["A"]}`, `false`},
		{"in text", `{"in": ["CH", "URN:UVCI:01:CH:ABC"]}`, `{}`, `true`},
		{"in text with non-text needle", `{"in": [1, "123"]}`, `{}`, `false`},
		{"in null haystack", `{"in": ["a", {"var": "x"}]}`, `{}`, `false`},

		// arithmetic and negation
		{"plus", `{"+": [{"var": "a"}, 2]}`, `{"a": 40}`, `42`},
		{"plus non-int", `{"+": [1, "2"]}`, `{}`, `null`},
		{"not zero", `{"!": [0]}`, `{}`, `true`},
		{"not text", `{"!": ["x"]}`, `{}`, `false`},
		{"not missing", `{"!": [{"var": "x"}]}`, `{}`, `true`},

		// plusTime
		{"plusTime days", `{"plusTime": ["2021-01-01", 21, "day"]}`, `{}`, `"2021-01-22"`},
		{"plusTime unit case", `{"plusTime": ["2021-01-01", 21, "DAY"]}`, `{}`, `"2021-01-22"`},
		{"plusTime from var", `{"plusTime": [{"var": "sc"}, 72, "hour"]}`, `{"sc": "2021-06-01T10:00:00+02:00"}`, `"2021-06-04T10:00:00+02:00"`},
		{"plusTime bad date", `{"plusTime": [{"var": "sc"}, 1, "day"]}`, `{"sc": "soon"}`, `null`},
		{"plusTime missing date", `{"plusTime": [{"var": "sc"}, 1, "day"]}`, `{}`, `null`},
		{"plusTime amount from var", `{"plusTime": ["2021-01-01", {"var": "n"}, "month"]}`, `{"n": 2}`, `"2021-03-01"`},
		{"plusTime amount not int", `{"plusTime": ["2021-01-01", {"var": "n"}, "month"]}`, `{"n": "2"}`, `null`},

		// reduce
		{"reduce sum", `{"reduce": [{"var": "xs"}, {"+": [{"var": "accumulator"}, {"var": "current"}]}, 0]}`, `{"xs": [1, 2, 3]}`, `6`},
		{"reduce sees outer data", `{"reduce": [{"var": "xs"}, {"+": [{"var": "accumulator"}, {"var": "step"}]}, 0]}`, `{"xs": [1, 1], "step": 5}`, `10`},
		{"reduce null array returns initial", `{"reduce": [{"var": "xs"}, {"+": [{"var": "accumulator"}, 1]}, 7]}`, `{}`, `7`},
		{"reduce non-array", `{"reduce": [{"var": "xs"}, {"var": "current"}, 0]}`, `{"xs": "abc"}`, `null`},
		{"reduce any", `{"reduce": [{"var": "xs"}, {"if": [{"var": "accumulator"}, true, {"===": [{"var": "current"}, "b"]}]}, false]}`, `{"xs": ["a", "b", "c"]}`, `true`},

		// extractFromUVCI
		{"uvci with prefix", `{"extractFromUVCI": ["URN:UVCI:01:CH:ABC123", 1]}`, `{}`, `"CH"`},
		{"uvci without prefix", `{"extractFromUVCI": ["01:CH:ABC123", 1]}`, `{}`, `"CH"`},
		{"uvci mixed separators", `{"extractFromUVCI": ["URN:UVCI:01/CH/8F2B#X", 3]}`, `{}`, `"X"`},
		{"uvci out of range", `{"extractFromUVCI": ["URN:UVCI:01:CH:ABC123", 3]}`, `{}`, `null`},
		{"uvci negative index", `{"extractFromUVCI": ["URN:UVCI:01:CH:ABC123", -1]}`, `{}`, `null`},
		{"uvci null", `{"extractFromUVCI": [{"var": "ci"}, 0]}`, `{}`, `null`},
		{"uvci non-text", `{"extractFromUVCI": [5, 0]}`, `{}`, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evalJSON(t, tt.expr, tt.data); got != tt.want {
				t.Errorf("Evaluate(%s) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_ProgramErrors(t *testing.T) {
	tests := []struct {
		name    string
		expr    Expr
		wantErr error
	}{
		{"unknown operator", Operation{Operator: "xor", Args: []Expr{Literal{Value: Bool(true)}}}, ErrUnknownOperator},
		{"not with two operands", Operation{Operator: "!", Args: []Expr{Literal{Value: Int(1)}, Literal{Value: Int(2)}}}, ErrArity},
		{"and with one operand", Operation{Operator: "and", Args: []Expr{Literal{Value: Bool(true)}}}, ErrArity},
		{"nested error surfaces", Operation{Operator: "!", Args: []Expr{Operation{Operator: "xor"}}}, ErrUnknownOperator},
		{"nil expression", nil, ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr, Object{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	deep := strings.Repeat(`{"!": [`, 70) + `true` + strings.Repeat(`]}`, 70)
	native, err := decodeJSON([]byte(deep))
	if err != nil {
		t.Fatalf("decodeJSON() error = %v", err)
	}
	if _, err := Compile(native); !errors.Is(err, ErrTooDeep) {
		t.Errorf("Compile(deep) error = %v, want ErrTooDeep", err)
	}

	if _, err := Parse([]byte(`{"foo": [1]}`)); !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("Parse(unknown operator) error = %v, want ErrInvalidExpression", err)
	}
	if _, err := Parse([]byte(`{"if": `)); !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("Parse(truncated) error = %v, want ErrInvalidExpression", err)
	}
}

func TestEvaluate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("chained > agrees with pairwise comparison", prop.ForAll(
		func(a, b, c int) bool {
			expr := fmt.Sprintf(`{">": [%d, %d, %d]}`, a, b, c)
			e, err := Parse([]byte(expr))
			if err != nil {
				return false
			}
			v, err := Evaluate(e, Object{})
			if err != nil {
				return false
			}
			return Equal(v, Bool(a > b && b > c))
		},
		gen.IntRange(-5, 5), gen.IntRange(-5, 5), gen.IntRange(-5, 5),
	))

	properties.Property("extractFromUVCI ignores the URN prefix", prop.ForAll(
		func(fragments []string, index int) bool {
			bare := strings.Join(fragments, ":")
			withPrefix, ok1 := ExtractFromUVCI(uvciPrefix+bare, int64(index))
			without, ok2 := ExtractFromUVCI(bare, int64(index))
			if ok1 != ok2 || withPrefix != without {
				return false
			}
			return ok1 == (index < len(fragments)) && (!ok1 || without == fragments[index])
		},
		gen.SliceOfN(4, gen.AlphaString()), gen.IntRange(0, 6),
	))

	pool := []string{
		`0`, `1`, `-7`, `true`, `false`, `""`, `"text"`, `[1, 2]`, `[]`,
		`{"var": ""}`, `{"var": "xs"}`, `{"var": "xs.1"}`, `{"var": "missing.path"}`, `{"var": "s"}`,
		`"2021-05-01T00:00:00Z"`, `{"plusTime": ["2021-01-01", 1, "day"]}`, `{"plusTime": [{"var": "s"}, 2, "hour"]}`,
		`"day"`, `"month"`, `{"var": "n"}`,
	}
	operators := []string{
		"if", "and", "===", "in", "+", "!", ">", "<", ">=", "<=",
		"after", "before", "not-after", "not-before", "plusTime", "reduce", "extractFromUVCI",
	}
	data := Object{"xs": Array{Int(1), Int(2)}, "s": Text("2021-05-01"), "n": Int(3)}

	properties.Property("valid programs evaluate without error", prop.ForAll(
		func(opIdx, count, a, b, c int) bool {
			operands := []string{pool[a], pool[b], pool[c]}[:count]
			expr := fmt.Sprintf(`{%q: [%s]}`, operators[opIdx], strings.Join(operands, ", "))
			errs, err := ValidateJSON([]byte(expr))
			if err != nil {
				return false
			}
			if len(errs) > 0 {
				return true
			}
			e, err := Parse([]byte(expr))
			if err != nil {
				return false
			}
			v, err := Evaluate(e, data)
			return err == nil && v != nil
		},
		gen.IntRange(0, len(operators)-1), gen.IntRange(1, 3),
		gen.IntRange(0, len(pool)-1), gen.IntRange(0, len(pool)-1), gen.IntRange(0, len(pool)-1),
	))

	properties.TestingRun(t)
}
