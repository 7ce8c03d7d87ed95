// internal/certlogic/errors.go
package certlogic

import (
	"errors"

	"github.com/solatis/healthcert/internal/types"
)

// Evaluation errors. Only malformed programs produce errors; ill-typed data
// evaluates to Null.
var (
	ErrUnknownOperator   = types.ErrUnknownOperator
	ErrArity             = types.ErrArity
	ErrInvalidExpression = types.ErrInvalidExpression
	ErrTooDeep           = types.ErrExpressionTooDeep

	// ErrCoercionFailed indicates data that has no CertLogic representation.
	ErrCoercionFailed = errors.New("value has no CertLogic representation")

	// ErrInvalidDateTime indicates text that is not an ISO 8601 date or date-time.
	ErrInvalidDateTime = errors.New("invalid date-time")
)
