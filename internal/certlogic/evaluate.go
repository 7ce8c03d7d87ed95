// internal/certlogic/evaluate.go
package certlogic

import (
	"fmt"
)

/*
 * Tree-walking evaluation.
 *
 * Evaluate is pure: it reads data, never mutates it, and returns a fresh
 * Value. The only errors are program errors (unknown operator, wrong operand
 * count) on trees that bypassed Parse. Every data-dependent failure is Null.
 *
 * Evaluation order:
 *   - if evaluates the guard and then exactly one branch
 *   - and evaluates every operand, left to right
 *   - reduce evaluates the body once per element with "accumulator" and
 *     "current" bound on top of the data object
 */

// Evaluate evaluates expr against data.
func Evaluate(expr Expr, data Value) (Value, error) {
	if data == nil {
		data = Null{}
	}

	switch e := expr.(type) {
	case Literal:
		if e.Value == nil {
			return Null{}, nil
		}
		return e.Value, nil
	case ArrayExpr:
		out := make(Array, len(e.Elems))
		for i, elem := range e.Elems {
			v, err := Evaluate(elem, data)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case Var:
		return Resolve(data, e.Segments), nil
	case Operation:
		return evaluateOperation(e, data)
	case nil:
		return nil, fmt.Errorf("%w: nil expression", ErrInvalidExpression)
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpression, expr)
	}
}

// EvaluateBool evaluates expr and reports its truthiness.
func EvaluateBool(expr Expr, data Value) (bool, error) {
	v, err := Evaluate(expr, data)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

// evaluateOperation dispatches on the operator.
func evaluateOperation(op Operation, data Value) (Value, error) {
	a, ok := operatorArity[op.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op.Operator)
	}
	if !a.accepts(len(op.Args)) {
		return nil, fmt.Errorf("%w: %q takes %s operands, got %d", ErrArity, op.Operator, a, len(op.Args))
	}

	switch op.Operator {
	case "if":
		guard, err := Evaluate(op.Args[0], data)
		if err != nil {
			return nil, err
		}
		switch {
		case IsTruthy(guard):
			return Evaluate(op.Args[1], data)
		case IsFalsy(guard):
			return Evaluate(op.Args[2], data)
		default:
			return Null{}, nil
		}

	case "and":
		operands, err := evaluateAll(op.Args, data)
		if err != nil {
			return nil, err
		}
		result := true
		for _, v := range operands {
			result = result && IsTruthy(v)
		}
		return Bool(result), nil

	case "reduce":
		return evaluateReduce(op.Args, data)
	}

	operands, err := evaluateAll(op.Args, data)
	if err != nil {
		return nil, err
	}

	switch op.Operator {
	case "===":
		return Bool(Equal(operands[0], operands[1])), nil
	case "in":
		return contains(operands[0], operands[1]), nil
	case "+":
		return plus(operands[0], operands[1]), nil
	case "!":
		return negate(operands[0]), nil
	case ">", "<", ">=", "<=":
		return compareChain(op.Operator, operands, false), nil
	case "after", "before", "not-after", "not-before":
		return compareChain(dateOperators[op.Operator], operands, true), nil
	case "plusTime":
		return plusTime(operands[0], operands[1], operands[2]), nil
	case "extractFromUVCI":
		return extractFromUVCI(operands[0], operands[1]), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op.Operator)
	}
}

func evaluateAll(args []Expr, data Value) ([]Value, error) {
	out := make([]Value, len(args))
	for i, arg := range args {
		v, err := Evaluate(arg, data)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// evaluateReduce folds the operand array left to right. A Null array yields
// the initial value; any other non-array yields Null.
func evaluateReduce(args []Expr, data Value) (Value, error) {
	operand, err := Evaluate(args[0], data)
	if err != nil {
		return nil, err
	}

	var elems Array
	switch t := operand.(type) {
	case Null:
	case Array:
		elems = t
	default:
		return Null{}, nil
	}

	acc, err := Evaluate(args[2], data)
	if err != nil {
		return nil, err
	}
	for _, current := range elems {
		acc, err = Evaluate(args[1], reduceScope(data, acc, current))
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// reduceScope layers the fold bindings over a shallow copy of data.
func reduceScope(data, accumulator, current Value) Object {
	scope := Object{}
	if obj, ok := data.(Object); ok {
		scope = make(Object, len(obj)+2)
		for k, v := range obj {
			scope[k] = v
		}
	}
	scope["accumulator"] = accumulator
	scope["current"] = current
	return scope
}
