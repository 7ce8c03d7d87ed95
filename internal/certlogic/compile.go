// internal/certlogic/compile.go
package certlogic

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/healthcert/internal/types"
)

/*
 * Expression trees.
 *
 * Rule logic arrives as JSON. Parse decodes it, runs the structural
 * validator and compiles the result into an immutable Expr tree:
 *
 *   - Literal:   boolean, integer or text scalar
 *   - ArrayExpr: JSON array whose elements are evaluated in order
 *   - Var:       { "var": "path" } with the path split once at compile time
 *   - Operation: { "<operator>": [operands...] }
 *
 * Compile re-checks the arity table and the nesting limit so that trees built
 * without Parse are still safe to evaluate.
 */

// Expr is a compiled CertLogic expression.
type Expr interface {
	exprNode()
}

// Literal is a constant scalar.
type Literal struct {
	Value Value
}

// ArrayExpr is an array literal whose elements are themselves expressions.
type ArrayExpr struct {
	Elems []Expr
}

// Var is a data access.
type Var struct {
	Path     string
	Segments []string
}

// Operation applies Operator to Args.
type Operation struct {
	Operator string
	Args     []Expr
}

func (Literal) exprNode()   {}
func (ArrayExpr) exprNode() {}
func (Var) exprNode()       {}
func (Operation) exprNode() {}

// Parse decodes, validates and compiles a JSON expression.
// Validation failures are returned as ValidationErrors.
func Parse(raw []byte) (Expr, error) {
	native, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if errs := Validate(native); len(errs) > 0 {
		return nil, errs
	}
	return Compile(native)
}

// Compile turns a decoded JSON tree into an Expr.
func Compile(node any) (Expr, error) {
	return compile(node, 1)
}

func compile(node any, depth int) (Expr, error) {
	if depth > types.MaxExpressionDepth {
		return nil, ErrTooDeep
	}

	switch t := node.(type) {
	case bool:
		return Literal{Value: Bool(t)}, nil
	case string:
		return Literal{Value: Text(t)}, nil
	case json.Number, float64, int, int64:
		v, err := FromNative(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return Literal{Value: v}, nil
	case []any:
		elems := make([]Expr, len(t))
		for i, elem := range t {
			e, err := compile(elem, depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return ArrayExpr{Elems: elems}, nil
	case map[string]any:
		return compileOperation(t, depth)
	case nil:
		return nil, fmt.Errorf("%w: null", ErrInvalidExpression)
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpression, node)
	}
}

// compileOperation compiles a single-key operation object.
func compileOperation(obj map[string]any, depth int) (Expr, error) {
	if len(obj) != 1 {
		return nil, fmt.Errorf("%w: expression object must have exactly one key, but it has %d", ErrInvalidExpression, len(obj))
	}

	var operator string
	var operands any
	for k, v := range obj {
		operator, operands = k, v
	}

	if operator == "var" {
		path, ok := operands.(string)
		if !ok {
			return nil, fmt.Errorf("%w: not of the form { \"var\": \"<path>\" }", ErrInvalidExpression)
		}
		segments, err := SplitPath(path)
		if err != nil {
			return nil, err
		}
		return Var{Path: path, Segments: segments}, nil
	}

	a, ok := operatorArity[operator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}

	list, ok := operands.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: operation not of the form { %q: [ <values...> ] }", ErrInvalidExpression, operator)
	}
	if !a.accepts(len(list)) {
		return nil, fmt.Errorf("%w: %q takes %s operands, got %d", ErrArity, operator, a, len(list))
	}

	args := make([]Expr, len(list))
	for i, operand := range list {
		e, err := compile(operand, depth+1)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return Operation{Operator: operator, Args: args}, nil
}
