// internal/certlogic/validate.go
package certlogic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solatis/healthcert/internal/types"
)

/*
 * Structural validation of CertLogic expressions.
 *
 * Validate walks the decoded JSON (not a compiled tree) so that every problem
 * is reported, not just the first. It never evaluates anything.
 *
 * Paths use a JSONPath-like notation rooted at "$":
 *   $                  the whole expression
 *   $.and[1]           second operand of a top-level and
 *   $.if[0].var        the var operand inside the guard of an if
 */

// ValidationError locates one structural problem.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// ValidationErrors is the full result of a validation pass.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidExpression, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrInvalidExpression.
func (errs ValidationErrors) Unwrap() error {
	return ErrInvalidExpression
}

// Validate checks the shape of a decoded expression. An empty result means
// the expression is well-formed.
func Validate(expr any) ValidationErrors {
	v := &validator{}
	v.validate(expr, "$", 1)
	return v.errs
}

// ValidateJSON decodes raw and validates it.
func ValidateJSON(raw []byte) (ValidationErrors, error) {
	native, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	return Validate(native), nil
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) validate(expr any, path string, depth int) {
	if depth > types.MaxExpressionDepth {
		v.fail(path, "expression nests deeper than %d levels", types.MaxExpressionDepth)
		return
	}

	switch t := expr.(type) {
	case bool, string:
	case json.Number, float64, int, int64:
		if _, err := FromNative(t); err != nil {
			v.fail(path, "%s is a non-integer number", renderJSON(t))
		}
	case nil:
		v.fail(path, "invalid CertLogic expression")
	case []any:
		for i, elem := range t {
			v.validate(elem, fmt.Sprintf("%s[%d]", path, i), depth+1)
		}
	case map[string]any:
		v.validateObject(t, path, depth)
	default:
		v.fail(path, "invalid CertLogic expression")
	}
}

func (v *validator) validateObject(obj map[string]any, path string, depth int) {
	if len(obj) != 1 {
		v.fail(path, "expression object must have exactly one key, but it has %d", len(obj))
		return
	}

	operator := sortedKeys(obj)[0]
	operands := obj[operator]
	opPath := path + "." + operator

	if operator == "var" {
		v.validateVar(operands, opPath)
		return
	}
	if !IsOperator(operator) {
		v.fail(path, "unrecognised operator: %q", operator)
		return
	}

	list, ok := operands.([]any)
	if !ok || len(list) == 0 {
		v.fail(path, "operation not of the form { %q: [ <values...> ] }", operator)
		return
	}
	n := len(list)

	switch operator {
	case "if":
		if n != 3 {
			v.fail(path, "an \"if\"-operation must have exactly 3 values/operands, but it has %d", n)
		}
		v.validateOperands(list, opPath, depth, 3)
	case "and":
		if n < 2 {
			v.fail(path, "an \"and\" operation must have at least 2 operands, but it has %d", n)
		}
		v.validateOperands(list, opPath, depth, n)
	case ">", "<", ">=", "<=", "after", "before", "not-after", "not-before":
		if n < 2 || n > 3 {
			v.fail(path, "an operation with operator %q must have 2 or 3 operands, but it has %d", operator, n)
		}
		v.validateOperands(list, opPath, depth, 3)
	case "===", "in", "+":
		if n != 2 {
			v.fail(path, "an operation with operator %q must have 2 operands, but it has %d", operator, n)
		}
		v.validateOperands(list, opPath, depth, 2)
	case "!":
		if n != 1 {
			v.fail(path, "a !-operation (logical not/negation) must have exactly 1 operand, but it has %d", n)
		}
		v.validateOperands(list, opPath, depth, 1)
	case "plusTime":
		v.validatePlusTime(list, path, opPath, depth)
	case "reduce":
		if n != 3 {
			v.fail(path, "an \"reduce\"-operation must have exactly 3 values/operands, but it has %d", n)
		}
		v.validateOperands(list, opPath, depth, 3)
	case "extractFromUVCI":
		v.validateExtractFromUVCI(list, path, opPath, depth)
	}
}

// validateOperands validates at most limit operands.
func (v *validator) validateOperands(operands []any, opPath string, depth, limit int) {
	for i, operand := range operands {
		if i >= limit {
			return
		}
		v.validate(operand, fmt.Sprintf("%s[%d]", opPath, i), depth+1)
	}
}

func (v *validator) validateVar(operand any, path string) {
	p, ok := operand.(string)
	if !ok {
		v.fail(path, "not of the form { \"var\": \"<path>\" }")
		return
	}
	if !ValidPath(p) {
		v.fail(path, "data access path doesn't have a valid format: %s", p)
	}
}

func (v *validator) validatePlusTime(operands []any, path, opPath string, depth int) {
	if len(operands) != 3 {
		v.fail(path, "a \"plusTime\"-operation must have exactly 3 values/operands, but it has %d", len(operands))
	}
	v.validateOperands(operands, opPath, depth, 1)

	if len(operands) > 1 {
		amountPath := opPath + "[1]"
		if isIntegerOperand(operands[1]) {
			v.validate(operands[1], amountPath, depth+1)
		} else {
			v.fail(amountPath, "\"amount\" argument (#2) of \"plusTime\" must be an integer, but it is: %s", renderJSON(operands[1]))
		}
	}

	if len(operands) > 2 {
		name, ok := operands[2].(string)
		if _, known := ParseTimeUnit(name); !ok || !known {
			units := make([]string, len(TimeUnits))
			for i, u := range TimeUnits {
				units[i] = string(u)
			}
			v.fail(opPath+"[2]", "\"unit\" argument (#3) of \"plusTime\" must be a string equal to one of %s, but it is: %s",
				strings.Join(units, ", "), renderJSON(operands[2]))
		}
	}
}

func (v *validator) validateExtractFromUVCI(operands []any, path, opPath string, depth int) {
	if len(operands) != 2 {
		v.fail(path, "an operation with operator \"extractFromUVCI\" must have 2 operands, but it has %d", len(operands))
	}
	v.validateOperands(operands, opPath, depth, 1)

	if len(operands) > 1 {
		indexPath := opPath + "[1]"
		if isIntegerOperand(operands[1]) {
			v.validate(operands[1], indexPath, depth+1)
		} else {
			v.fail(indexPath, "\"index\" argument (#2) of \"extractFromUVCI\" must be an integer, but it is: %s", renderJSON(operands[1]))
		}
	}
}

// isIntegerOperand accepts integer literals and operation objects, whose
// result type is only known at evaluation time.
func isIntegerOperand(operand any) bool {
	switch t := operand.(type) {
	case json.Number, float64, int, int64:
		_, err := FromNative(t)
		return err == nil
	case map[string]any:
		return true
	default:
		return false
	}
}

func renderJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
